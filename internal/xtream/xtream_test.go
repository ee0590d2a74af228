package xtream

import (
	"context"
	"errors"
	"testing"
)

func TestURLBuilder_Build(t *testing.T) {
	provider := NewStaticCredentials("http://panel.example.com:8080/", "alice", "s3cret")
	builder := NewURLBuilder(provider)

	tests := []struct {
		name      string
		streamID  int
		mediaType MediaType
		extension string
		want      string
	}{
		{
			name:      "live stream",
			streamID:  101,
			mediaType: MediaTypeLive,
			extension: "ts",
			want:      "http://panel.example.com:8080/alice/s3cret/101.ts",
		},
		{
			name:      "movie",
			streamID:  42,
			mediaType: MediaTypeMovie,
			extension: "mp4",
			want:      "http://panel.example.com:8080/movie/alice/s3cret/42.mp4",
		},
		{
			name:      "series episode",
			streamID:  977,
			mediaType: MediaTypeSeries,
			extension: "mkv",
			want:      "http://panel.example.com:8080/series/alice/s3cret/977.mkv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := builder.Build(context.Background(), tt.streamID, tt.mediaType, tt.extension)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}

			if got != tt.want {
				t.Errorf("Build() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestURLBuilder_NoCredentials(t *testing.T) {
	tests := []struct {
		name     string
		provider *StaticCredentials
	}{
		{"all empty", NewStaticCredentials("", "", "")},
		{"missing password", NewStaticCredentials("http://panel.example.com", "alice", "")},
		{"missing base url", NewStaticCredentials("", "alice", "s3cret")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder := NewURLBuilder(tt.provider)

			_, err := builder.Build(context.Background(), 42, MediaTypeMovie, "mp4")
			if !errors.Is(err, ErrNoCredentials) {
				t.Errorf("Build() error = %v, want ErrNoCredentials", err)
			}
		})
	}
}

func TestURLBuilder_InvalidMediaType(t *testing.T) {
	builder := NewURLBuilder(NewStaticCredentials("http://panel.example.com", "alice", "s3cret"))

	if _, err := builder.Build(context.Background(), 42, MediaType("radio"), "mp3"); err == nil {
		t.Fatal("Build() expected error for invalid media type")
	}
}

func TestMediaType_Valid(t *testing.T) {
	for _, m := range []MediaType{MediaTypeLive, MediaTypeMovie, MediaTypeSeries} {
		if !m.Valid() {
			t.Errorf("%q should be valid", m)
		}
	}

	if MediaType("podcast").Valid() {
		t.Error("unknown media type should not be valid")
	}
}
