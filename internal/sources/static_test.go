package sources

import (
	"errors"
	"testing"

	"github.com/desertthunder/imgmux/internal/multiplex"
	"github.com/desertthunder/imgmux/internal/shared"
	tu "github.com/desertthunder/imgmux/internal/testing"
)

func TestStaticSource(t *testing.T) {
	t.Run("Maps Identifiers To Images And URLs", func(t *testing.T) {
		src := NewStaticSource()
		img := &multiplex.Image{Data: []byte("direct"), ContentType: "image/png"}
		u := tu.MustParseURL(t, "https://cdn.example.com/full.png")

		src.AddImage("direct", img)
		src.AddURL("remote", u)

		if src.Image("direct") != img {
			t.Error("expected the direct image back")
		}
		if src.URL("remote") != u {
			t.Error("expected the remote url back")
		}
		if src.Image("remote") != nil || src.URL("direct") != nil {
			t.Error("expected unmapped lookups to return nil")
		}
		if src.Image("unknown") != nil || src.URL("unknown") != nil {
			t.Error("expected unknown identifiers to return nil")
		}
	})

	t.Run("AddRawURL Parses And Maps", func(t *testing.T) {
		src := NewStaticSource()
		if err := src.AddRawURL("thumb", "https://cdn.example.com/thumb.png"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if src.URL("thumb") == nil {
			t.Error("expected the url to be mapped")
		}

		if err := src.AddRawURL("bad", "http://cdn.example.com/%zz"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestFromURLs(t *testing.T) {
	t.Run("Ranks In Argument Order", func(t *testing.T) {
		raws := []string{
			"https://cdn.example.com/full.png",
			"https://cdn.example.com/medium.png",
			"https://cdn.example.com/thumb.png",
		}

		src, ids, err := FromURLs(raws)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(ids) != 3 {
			t.Fatalf("expected three identifiers, got %d", len(ids))
		}
		for i, id := range ids {
			if id != raws[i] {
				t.Errorf("expected identifier %q at rank %d, got %q", raws[i], i, id)
			}
			if src.URL(id) == nil {
				t.Errorf("expected a url mapped for %q", id)
			}
		}
	})

	t.Run("Rejects Non-HTTP Schemes", func(t *testing.T) {
		_, _, err := FromURLs([]string{"ftp://cdn.example.com/full.png"})
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Rejects Relative URLs", func(t *testing.T) {
		_, _, err := FromURLs([]string{"/full.png"})
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Rejects URLs Without A Host", func(t *testing.T) {
		_, _, err := FromURLs([]string{"https:///full.png"})
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
