package news

import (
	"errors"
	"fmt"
)

// PlaceholderTitle replaces a missing or blank title.
const PlaceholderTitle = "Başlık Yok"

// Item is a single news entry produced by the AI source.
type Item struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Link    string `json:"link,omitempty"`
}

// Kind classifies why a fetch produced no items.
type Kind string

const (
	KindSafety  Kind = "safety"
	KindFormat  Kind = "format"
	KindParse   Kind = "parse"
	KindAuth    Kind = "auth"
	KindQuota   Kind = "quota"
	KindNetwork Kind = "network"
	KindTimeout Kind = "timeout"
	KindUnknown Kind = "unknown"
)

// FetchError is the only error type returned by content fetching and parsing.
type FetchError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fail builds a *FetchError.
func Fail(kind Kind, msg string, err error) *FetchError {
	return &FetchError{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the failure kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	if fe, ok := AsFetchError(err); ok {
		return fe.Kind
	}
	return KindUnknown
}

func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
