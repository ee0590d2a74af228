package xtream

import (
	"context"
	"fmt"
	"strings"
)

// ErrNoCredentials is returned when no panel credentials are stored.
var ErrNoCredentials = fmt.Errorf("no stored xtream credentials")

// Credentials holds the panel login used to build stream URLs.
type Credentials struct {
	BaseURL  string
	Username string
	Password string
}

// CredentialProvider supplies the stored panel credentials.
type CredentialProvider interface {
	Credentials(ctx context.Context) (*Credentials, error)
}

// StaticCredentials is a CredentialProvider backed by values injected at
// construction time, typically from the environment.
type StaticCredentials struct {
	creds Credentials
}

func NewStaticCredentials(baseURL, username, password string) *StaticCredentials {
	return &StaticCredentials{creds: Credentials{
		BaseURL:  baseURL,
		Username: username,
		Password: password,
	}}
}

func (s *StaticCredentials) Credentials(_ context.Context) (*Credentials, error) {
	if s.creds.BaseURL == "" || s.creds.Username == "" || s.creds.Password == "" {
		return nil, ErrNoCredentials
	}

	return &s.creds, nil
}

// MediaType identifies the kind of asset a stream id refers to.
type MediaType string

const (
	MediaTypeLive   MediaType = "live"
	MediaTypeMovie  MediaType = "movie"
	MediaTypeSeries MediaType = "series"
)

func (m MediaType) Valid() bool {
	switch m {
	case MediaTypeLive, MediaTypeMovie, MediaTypeSeries:
		return true
	}

	return false
}

// URLBuilder builds Xtream-Codes stream URLs from stored credentials. It is
// pure over the credentials and parameters: no network I/O.
type URLBuilder struct {
	provider CredentialProvider
}

func NewURLBuilder(provider CredentialProvider) *URLBuilder {
	return &URLBuilder{provider: provider}
}

// Build returns the fetch URL for the given stream. Panels route live streams
// at the root and VOD under /movie and /series.
func (b *URLBuilder) Build(ctx context.Context, streamID int, mediaType MediaType, extension string) (string, error) {
	creds, err := b.provider.Credentials(ctx)
	if err != nil {
		return "", err
	}

	if !mediaType.Valid() {
		return "", fmt.Errorf("invalid media type %q", mediaType)
	}

	base := strings.TrimRight(creds.BaseURL, "/")

	switch mediaType {
	case MediaTypeMovie, MediaTypeSeries:
		return fmt.Sprintf("%s/%s/%s/%s/%d.%s", base, mediaType, creds.Username, creds.Password, streamID, extension), nil
	default:
		return fmt.Sprintf("%s/%s/%s/%d.%s", base, creds.Username, creds.Password, streamID, extension), nil
	}
}
