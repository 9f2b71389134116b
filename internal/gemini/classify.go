package gemini

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/deusflow/newsbot/internal/news"
)

var kindMessages = map[news.Kind]string{
	news.KindAuth:    "Gemini API key is invalid or not authorised",
	news.KindQuota:   "Gemini API quota exhausted",
	news.KindNetwork: "network error while contacting Gemini",
	news.KindTimeout: "Gemini did not answer in time",
	news.KindUnknown: "unexpected error from Gemini",
}

// Classify maps a transport error to a *news.FetchError. Structured signals
// (context deadline, HTTP code, gRPC code, net.Error) are consulted first; the
// message-text patterns at the end are a best-effort heuristic.
func Classify(err error) *news.FetchError {
	kind := classifyKind(err)
	return news.Fail(kind, kindMessages[kind], err)
}

func classifyKind(err error) news.Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return news.KindTimeout
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if k, ok := kindForHTTP(gerr.Code, gerr.Message); ok {
			return k
		}
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return news.KindAuth
		case codes.ResourceExhausted:
			return news.KindQuota
		case codes.DeadlineExceeded:
			return news.KindTimeout
		case codes.Unavailable:
			return news.KindNetwork
		case codes.InvalidArgument:
			if strings.Contains(strings.ToLower(s.Message()), "api key") {
				return news.KindAuth
			}
		}
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return news.KindTimeout
		}
		return news.KindNetwork
	}

	return classifyText(err.Error())
}

func kindForHTTP(code int, msg string) (news.Kind, bool) {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return news.KindAuth, true
	case code == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "api key"):
		return news.KindAuth, true
	case code == http.StatusTooManyRequests:
		return news.KindQuota, true
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return news.KindTimeout, true
	case code == http.StatusBadGateway || code == http.StatusServiceUnavailable:
		return news.KindNetwork, true
	}
	return "", false
}

func classifyText(msg string) news.Kind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "api key not valid"), strings.Contains(m, "api_key_invalid"):
		return news.KindAuth
	case strings.Contains(m, "quota"), strings.Contains(m, "resource has been exhausted"):
		return news.KindQuota
	case strings.Contains(m, "timed out"), strings.Contains(m, "timeout"), strings.Contains(m, "deadline"):
		return news.KindTimeout
	case strings.Contains(m, "connection refused"), strings.Contains(m, "no such host"),
		strings.Contains(m, "connection reset"), strings.Contains(m, "fetch"), strings.Contains(m, "dial tcp"):
		return news.KindNetwork
	}
	return news.KindUnknown
}
