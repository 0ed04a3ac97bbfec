package rss

import "fmt"

// ErrorKind classifies a fetch failure.
type ErrorKind string

const (
	// KindNetwork covers transport failures and non-2xx responses.
	KindNetwork ErrorKind = "network"
	// KindParse means the body was fetched but is not a readable feed.
	KindParse ErrorKind = "parse"
)

// FetchError is returned by Fetcher.Fetch.
type FetchError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s error for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func networkError(url string, err error) error {
	return &FetchError{Kind: KindNetwork, URL: url, Err: err}
}

func parseError(url string, err error) error {
	return &FetchError{Kind: KindParse, URL: url, Err: err}
}
