package multiplex

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestResolver_AcquisitionOrder(t *testing.T) {
	t.Run("direct image wins over URL", func(t *testing.T) {
		src := newScriptedSource()
		img := testImage("direct")
		src.setImage("photo", img)
		src.setURL("photo", "https://cdn.example.com/photo.png")
		dl := newFakeDownloader()

		r := New[string](src, Options{Downloader: dl})
		defer r.Close()
		events, stop := r.Subscribe(64)
		defer stop()

		r.SetCandidates("photo")
		id, got := awaitResolved(t, r)
		if id != "photo" || got != img {
			t.Fatalf("Await returned (%q, %p), want (photo, %p)", id, got, img)
		}
		if dl.totalCalls() != 0 {
			t.Errorf("downloader called %d times for a direct image", dl.totalCalls())
		}
		ev := waitEvent(t, events, KindImageUpdated, "photo")
		if ev.HasPrevious {
			t.Error("first accepted image reported a previous image")
		}
		waitEvent(t, events, KindDisplayFinished, "photo")
	})

	t.Run("cache hit skips download", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("photo", "https://cdn.example.com/photo.png")
		img := testImage("cached")
		cache := newFakeCache()
		cache.put("https://cdn.example.com/photo.png", img)
		dl := newFakeDownloader()

		r := New[string](src, Options{Cache: cache, Downloader: dl})
		events, stop := r.Subscribe(64)
		defer stop()

		r.SetCandidates("photo")
		if _, got := awaitResolved(t, r); got != img {
			t.Fatalf("loaded %p, want cached image %p", got, img)
		}
		if dl.totalCalls() != 0 {
			t.Errorf("downloader called %d times despite cache hit", dl.totalCalls())
		}
		if cache.fetchCount() != 1 {
			t.Errorf("cache fetched %d times, want 1", cache.fetchCount())
		}

		r.Close()
		for _, ev := range drainEvents(t, events) {
			if ev.Kind == KindDownloadStarted {
				t.Error("download started despite cache hit")
			}
		}
	})

	t.Run("cache miss falls through to download", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("photo", "https://cdn.example.com/photo.png")
		img := testImage("downloaded")
		cache := newFakeCache()
		dl := newFakeDownloader()
		dl.respond("https://cdn.example.com/photo.png", img)

		r := New[string](src, Options{Cache: cache, Downloader: dl})
		defer r.Close()

		r.SetCandidates("photo")
		if _, got := awaitResolved(t, r); got != img {
			t.Fatalf("loaded %p, want downloaded image %p", got, img)
		}
		if cache.fetchCount() != 1 || dl.totalCalls() != 1 {
			t.Errorf("cache=%d downloads=%d, want 1 and 1", cache.fetchCount(), dl.totalCalls())
		}
	})

	t.Run("cache error falls through to download", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("photo", "https://cdn.example.com/photo.png")
		img := testImage("downloaded")
		cache := newFakeCache()
		cache.failWith("https://cdn.example.com/photo.png", errors.New("index corrupt"))
		dl := newFakeDownloader()
		dl.respond("https://cdn.example.com/photo.png", img)

		r := New[string](src, Options{Cache: cache, Downloader: dl})
		defer r.Close()

		r.SetCandidates("photo")
		if _, got := awaitResolved(t, r); got != img {
			t.Fatalf("loaded %p, want downloaded image %p", got, img)
		}
	})

	t.Run("cache miss without downloader fails", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("photo", "https://cdn.example.com/photo.png")

		r := New[string](src, Options{Cache: newFakeCache()})
		defer r.Close()

		r.SetCandidates("photo")
		_, _, err := awaitOutcome(t, r)
		if !errors.Is(err, ErrCacheMiss) {
			t.Fatalf("Await error = %v, want ErrCacheMiss", err)
		}
	})

	t.Run("no source fails with cause in finished notification", func(t *testing.T) {
		src := newScriptedSource()
		r := New[string](src, Options{Downloader: newFakeDownloader()})
		defer r.Close()
		events, stop := r.Subscribe(64)
		defer stop()

		r.SetCandidates("ghost")
		_, _, err := awaitOutcome(t, r)
		if !errors.Is(err, ErrNoSourceForImage) {
			t.Fatalf("Await error = %v, want ErrNoSourceForImage", err)
		}
		ev := waitEvent(t, events, KindDownloadFinished, "ghost")
		if !errors.Is(ev.Err, ErrNoSourceForImage) {
			t.Errorf("finished notification carried %v, want ErrNoSourceForImage", ev.Err)
		}
		if _, ok := r.LoadedIdentifier(); ok {
			t.Error("a failed resolution left an image loaded")
		}
	})

	t.Run("URL without providers fails", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("photo", "https://cdn.example.com/photo.png")

		r := New[string](src, Options{})
		defer r.Close()

		r.SetCandidates("photo")
		_, _, err := awaitOutcome(t, r)
		if !errors.Is(err, ErrNoProvider) {
			t.Fatalf("Await error = %v, want ErrNoProvider", err)
		}
	})
}

func TestResolver_BestOnly(t *testing.T) {
	t.Run("only the best candidate is fetched", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("best", "https://cdn.example.com/best.png")
		src.setURL("worse", "https://cdn.example.com/worse.png")
		dl := newFakeDownloader()
		dl.respond("https://cdn.example.com/best.png", testImage("best"))
		dl.respond("https://cdn.example.com/worse.png", testImage("worse"))

		r := New[string](src, Options{Downloader: dl})
		defer r.Close()

		r.SetCandidates("best", "worse")
		id, _ := awaitResolved(t, r)
		if id != "best" {
			t.Fatalf("resolved %q, want best", id)
		}
		if n := dl.callCount("https://cdn.example.com/worse.png"); n != 0 {
			t.Errorf("worse candidate fetched %d times with intermediates disabled", n)
		}
	})

	t.Run("best failure is terminal until the list is replaced", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("best", "https://cdn.example.com/best.png")
		src.setURL("worse", "https://cdn.example.com/worse.png")
		dl := newFakeDownloader()
		cause := errors.New("origin unreachable")
		dl.fail("https://cdn.example.com/best.png", cause)
		dl.respond("https://cdn.example.com/worse.png", testImage("worse"))

		r := New[string](src, Options{Downloader: dl})
		defer r.Close()

		r.SetCandidates("best", "worse")
		if _, _, err := awaitOutcome(t, r); !errors.Is(err, cause) {
			t.Fatalf("Await error = %v, want %v", err, cause)
		}
		if n := dl.callCount("https://cdn.example.com/worse.png"); n != 0 {
			t.Errorf("worse candidate fetched %d times after best failed", n)
		}

		// Replacing the list clears the failure record and retries.
		dl.respond("https://cdn.example.com/best.png", testImage("best"))
		r.SetCandidates("best", "worse")
		id, _ := awaitResolved(t, r)
		if id != "best" {
			t.Fatalf("resolved %q after retry, want best", id)
		}
		if n := dl.callCount("https://cdn.example.com/best.png"); n != 2 {
			t.Errorf("best fetched %d times, want 2", n)
		}
	})

	t.Run("reload retries a failed best", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("best", "https://cdn.example.com/best.png")
		dl := newFakeDownloader()
		dl.fail("https://cdn.example.com/best.png", errors.New("origin unreachable"))

		r := New[string](src, Options{Downloader: dl})
		defer r.Close()

		r.SetCandidates("best")
		if _, _, err := awaitOutcome(t, r); err == nil {
			t.Fatal("Await succeeded, want failure")
		}

		dl.respond("https://cdn.example.com/best.png", testImage("best"))
		r.Reload()
		id, _ := awaitResolved(t, r)
		if id != "best" {
			t.Fatalf("resolved %q after reload, want best", id)
		}
	})
}

func TestResolver_Intermediates(t *testing.T) {
	t.Run("worse image shows while better is in flight", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("full", "https://cdn.example.com/full.png")
		src.setURL("thumb", "https://cdn.example.com/thumb.png")
		dl := newFakeDownloader()
		full := testImage("full")
		thumb := testImage("thumb")
		dl.respond("https://cdn.example.com/full.png", full)
		dl.respond("https://cdn.example.com/thumb.png", thumb)
		release := dl.gate("https://cdn.example.com/full.png")

		r := New[string](src, Options{Downloader: dl, DownloadsIntermediates: true})
		defer r.Close()
		events, stop := r.Subscribe(64)
		defer stop()

		r.SetCandidates("full", "thumb")
		ev := waitEvent(t, events, KindImageUpdated, "thumb")
		if ev.HasPrevious {
			t.Error("thumbnail acceptance reported a previous image")
		}
		if id, img, ok := r.Loaded(); !ok || id != "thumb" || img != thumb {
			t.Fatalf("loaded (%q, %p, %v), want thumb", id, img, ok)
		}

		release()
		ev = waitEvent(t, events, KindImageUpdated, "full")
		if !ev.HasPrevious || ev.PreviousIdentifier != "thumb" {
			t.Errorf("full acceptance previous = (%q, %v), want thumb", ev.PreviousIdentifier, ev.HasPrevious)
		}
		id, _ := awaitResolved(t, r)
		if id != "full" {
			t.Fatalf("settled on %q, want full", id)
		}
	})

	t.Run("late worse result is discarded", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("full", "https://cdn.example.com/full.png")
		src.setURL("thumb", "https://cdn.example.com/thumb.png")
		dl := newFakeDownloader()
		dl.respond("https://cdn.example.com/full.png", testImage("full"))
		dl.respond("https://cdn.example.com/thumb.png", testImage("thumb"))
		release := dl.gate("https://cdn.example.com/thumb.png")

		r := New[string](src, Options{Downloader: dl, DownloadsIntermediates: true})
		events, stop := r.Subscribe(64)
		defer stop()

		r.SetCandidates("full", "thumb")
		waitEvent(t, events, KindImageUpdated, "full")
		release()

		r.Close()
		updates := 0
		var finishedThumb error
		sawThumbFinished := false
		for _, ev := range drainEvents(t, events) {
			if ev.Kind == KindImageUpdated {
				updates++
			}
			if ev.Kind == KindDownloadFinished && ev.Identifier == "thumb" {
				sawThumbFinished = true
				finishedThumb = ev.Err
			}
		}
		if updates != 1 {
			t.Errorf("saw %d updates, want only the full image", updates)
		}
		if sawThumbFinished && finishedThumb == nil {
			t.Error("abandoned thumbnail download finished without a cause")
		}
		if id, _ := r.LoadedIdentifier(); id != "full" {
			t.Errorf("loaded %q, want full", id)
		}
	})
}

func TestResolver_SetCandidates(t *testing.T) {
	t.Run("duplicates keep first occurrence", func(t *testing.T) {
		src := newScriptedSource()
		r := New[string](src, Options{})
		defer r.Close()

		r.SetCandidates("a", "b", "a", "c", "b")
		got := r.Candidates()
		want := []string{"a", "b", "c"}
		if len(got) != len(want) {
			t.Fatalf("candidates = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("candidates = %v, want %v", got, want)
			}
		}
	})

	t.Run("retained identifier keeps its fetch running", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("a", "https://cdn.example.com/a.png")
		src.setURL("c", "https://cdn.example.com/c.png")
		dl := newFakeDownloader()
		dl.respond("https://cdn.example.com/a.png", testImage("a"))
		release := dl.gate("https://cdn.example.com/a.png")

		r := New[string](src, Options{Downloader: dl})
		defer r.Close()
		events, stop := r.Subscribe(64)
		defer stop()

		r.SetCandidates("a")
		waitEvent(t, events, KindDownloadStarted, "a")
		r.SetCandidates("a", "c")
		release()

		id, _ := awaitResolved(t, r)
		if id != "a" {
			t.Fatalf("resolved %q, want a", id)
		}
		if n := dl.callCount("https://cdn.example.com/a.png"); n != 1 {
			t.Errorf("retained candidate fetched %d times, want 1", n)
		}
	})

	t.Run("result from a replaced list is dropped", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("old", "https://cdn.example.com/old.png")
		src.setURL("new", "https://cdn.example.com/new.png")
		dl := newFakeDownloader()
		dl.respond("https://cdn.example.com/old.png", testImage("old"))
		dl.respond("https://cdn.example.com/new.png", testImage("new"))
		release := dl.gate("https://cdn.example.com/old.png")

		r := New[string](src, Options{Downloader: dl})
		events, stop := r.Subscribe(64)
		defer stop()

		r.SetCandidates("old")
		waitEvent(t, events, KindDownloadStarted, "old")
		r.SetCandidates("new")
		waitEvent(t, events, KindImageUpdated, "new")
		release()

		r.Close()
		for _, ev := range drainEvents(t, events) {
			if ev.Kind == KindImageUpdated && ev.Identifier == "old" {
				t.Error("stale result from replaced list was accepted")
			}
		}
		if id, _ := r.LoadedIdentifier(); id != "new" {
			t.Errorf("loaded %q, want new", id)
		}
	})

	t.Run("loaded image persists until superseded", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("a", "https://cdn.example.com/a.png")
		src.setURL("x", "https://cdn.example.com/x.png")
		dl := newFakeDownloader()
		dl.respond("https://cdn.example.com/a.png", testImage("a"))
		dl.respond("https://cdn.example.com/x.png", testImage("x"))
		release := dl.gate("https://cdn.example.com/x.png")

		r := New[string](src, Options{Downloader: dl})
		defer r.Close()
		events, stop := r.Subscribe(64)
		defer stop()

		r.SetCandidates("a")
		awaitResolved(t, r)

		r.SetCandidates("x")
		if id, ok := r.LoadedIdentifier(); !ok || id != "a" {
			t.Fatalf("loaded (%q, %v) right after replacement, want retained a", id, ok)
		}

		release()
		ev := waitEvent(t, events, KindImageUpdated, "x")
		if !ev.HasPrevious || ev.PreviousIdentifier != "a" {
			t.Errorf("superseding update previous = (%q, %v), want a", ev.PreviousIdentifier, ev.HasPrevious)
		}
	})
}

func TestResolver_Reload(t *testing.T) {
	t.Run("changed locator refetches at equal rank", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("avatar", "https://cdn.example.com/v1.png")
		dl := newFakeDownloader()
		v1 := testImage("v1")
		v2 := testImage("v2")
		dl.respond("https://cdn.example.com/v1.png", v1)
		dl.respond("https://cdn.example.com/v2.png", v2)

		r := New[string](src, Options{Downloader: dl})
		defer r.Close()
		events, stop := r.Subscribe(64)
		defer stop()

		r.SetCandidates("avatar")
		if _, img := awaitResolved(t, r); img != v1 {
			t.Fatalf("loaded %p, want v1 %p", img, v1)
		}

		src.setURL("avatar", "https://cdn.example.com/v2.png")
		r.Reload()
		ev := waitEvent(t, events, KindImageUpdated, "avatar")
		if !ev.HasPrevious || ev.PreviousIdentifier != "avatar" {
			t.Errorf("reload update previous = (%q, %v), want avatar itself", ev.PreviousIdentifier, ev.HasPrevious)
		}
		if _, img, _ := r.Loaded(); img != v2 {
			t.Errorf("loaded %p after reload, want v2 %p", img, v2)
		}
	})

	t.Run("unchanged locator is not refetched", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("avatar", "https://cdn.example.com/v1.png")
		dl := newFakeDownloader()
		dl.respond("https://cdn.example.com/v1.png", testImage("v1"))

		r := New[string](src, Options{Downloader: dl})
		defer r.Close()

		r.SetCandidates("avatar")
		awaitResolved(t, r)
		r.Reload()
		awaitResolved(t, r)
		time.Sleep(50 * time.Millisecond)
		if n := dl.callCount("https://cdn.example.com/v1.png"); n != 1 {
			t.Errorf("unchanged source fetched %d times, want 1", n)
		}
	})

	t.Run("changed direct image is picked up", func(t *testing.T) {
		src := newScriptedSource()
		first := testImage("first")
		second := testImage("second")
		src.setImage("avatar", first)

		r := New[string](src, Options{})
		defer r.Close()
		events, stop := r.Subscribe(64)
		defer stop()

		r.SetCandidates("avatar")
		if _, img := awaitResolved(t, r); img != first {
			t.Fatalf("loaded %p, want first %p", img, first)
		}

		src.setImage("avatar", second)
		r.Reload()
		waitEvent(t, events, KindImageUpdated, "avatar")
		if _, img, _ := r.Loaded(); img != second {
			t.Errorf("loaded %p after reload, want second %p", img, second)
		}
	})

	t.Run("loaded image survives a source that lost it", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("avatar", "https://cdn.example.com/v1.png")
		dl := newFakeDownloader()
		dl.respond("https://cdn.example.com/v1.png", testImage("v1"))

		r := New[string](src, Options{Downloader: dl})
		defer r.Close()

		r.SetCandidates("avatar")
		awaitResolved(t, r)

		src.mu.Lock()
		delete(src.urls, "avatar")
		src.mu.Unlock()
		r.Reload()
		if id, ok := r.LoadedIdentifier(); !ok || id != "avatar" {
			t.Errorf("loaded (%q, %v) after reload, want avatar retained", id, ok)
		}
	})
}

func TestResolver_Await(t *testing.T) {
	t.Run("empty candidate list", func(t *testing.T) {
		r := New[string](newScriptedSource(), Options{})
		defer r.Close()
		if _, _, err := awaitOutcome(t, r); !errors.Is(err, ErrNoCandidates) {
			t.Fatalf("Await error = %v, want ErrNoCandidates", err)
		}
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("slow", "https://cdn.example.com/slow.png")
		dl := newFakeDownloader()
		dl.respond("https://cdn.example.com/slow.png", testImage("slow"))
		release := dl.gate("https://cdn.example.com/slow.png")
		defer release()

		r := New[string](src, Options{Downloader: dl})
		defer r.Close()
		r.SetCandidates("slow")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		if _, _, err := r.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Await error = %v, want deadline exceeded", err)
		}
	})

	t.Run("settles on worse image when best fails", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("full", "https://cdn.example.com/full.png")
		src.setURL("thumb", "https://cdn.example.com/thumb.png")
		dl := newFakeDownloader()
		dl.fail("https://cdn.example.com/full.png", errors.New("origin unreachable"))
		thumb := testImage("thumb")
		dl.respond("https://cdn.example.com/thumb.png", thumb)

		r := New[string](src, Options{Downloader: dl, DownloadsIntermediates: true})
		defer r.Close()

		r.SetCandidates("full", "thumb")
		id, img, err := awaitOutcome(t, r)
		if err != nil {
			t.Fatalf("Await failed: %v", err)
		}
		if id != "thumb" || img != thumb {
			t.Fatalf("settled on (%q, %p), want thumb %p", id, img, thumb)
		}
	})

	t.Run("returns best failure when everything fails", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("full", "https://cdn.example.com/full.png")
		src.setURL("thumb", "https://cdn.example.com/thumb.png")
		dl := newFakeDownloader()
		bestErr := errors.New("origin unreachable")
		dl.fail("https://cdn.example.com/full.png", bestErr)
		dl.fail("https://cdn.example.com/thumb.png", errors.New("thumbnail gone"))

		r := New[string](src, Options{Downloader: dl, DownloadsIntermediates: true})
		defer r.Close()

		r.SetCandidates("full", "thumb")
		if _, _, err := awaitOutcome(t, r); !errors.Is(err, bestErr) {
			t.Fatalf("Await error = %v, want the best candidate's %v", err, bestErr)
		}
	})
}

func TestResolver_SetDownloadsIntermediates(t *testing.T) {
	t.Run("disabling abandons everything but the best", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("full", "https://cdn.example.com/full.png")
		src.setURL("thumb", "https://cdn.example.com/thumb.png")
		dl := newFakeDownloader()
		dl.respond("https://cdn.example.com/full.png", testImage("full"))
		dl.respond("https://cdn.example.com/thumb.png", testImage("thumb"))
		releaseFull := dl.gate("https://cdn.example.com/full.png")
		releaseThumb := dl.gate("https://cdn.example.com/thumb.png")
		defer releaseThumb()

		r := New[string](src, Options{Downloader: dl, DownloadsIntermediates: true})
		defer r.Close()
		events, stop := r.Subscribe(64)
		defer stop()

		r.SetCandidates("full", "thumb")
		waitEvent(t, events, KindDownloadStarted, "full")
		waitEvent(t, events, KindDownloadStarted, "thumb")

		r.SetDownloadsIntermediates(false)
		ev := waitEvent(t, events, KindDownloadFinished, "thumb")
		if !errors.Is(ev.Err, ErrBestImageIdentifierChanged) {
			t.Errorf("abandoned download finished with %v, want ErrBestImageIdentifierChanged", ev.Err)
		}

		releaseFull()
		id, _ := awaitResolved(t, r)
		if id != "full" {
			t.Fatalf("resolved %q, want full", id)
		}
	})

	t.Run("enabling schedules withheld candidates", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("full", "https://cdn.example.com/full.png")
		src.setURL("thumb", "https://cdn.example.com/thumb.png")
		dl := newFakeDownloader()
		full := testImage("full")
		dl.respond("https://cdn.example.com/full.png", full)
		dl.respond("https://cdn.example.com/thumb.png", testImage("thumb"))
		releaseFull := dl.gate("https://cdn.example.com/full.png")

		r := New[string](src, Options{Downloader: dl})
		defer r.Close()
		events, stop := r.Subscribe(64)
		defer stop()

		r.SetCandidates("full", "thumb")
		waitEvent(t, events, KindDownloadStarted, "full")

		r.SetDownloadsIntermediates(true)
		waitEvent(t, events, KindImageUpdated, "thumb")

		releaseFull()
		ev := waitEvent(t, events, KindImageUpdated, "full")
		if !ev.HasPrevious || ev.PreviousIdentifier != "thumb" {
			t.Errorf("full superseded (%q, %v), want thumb", ev.PreviousIdentifier, ev.HasPrevious)
		}
	})

	t.Run("failure records survive the toggle", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("full", "https://cdn.example.com/full.png")
		src.setURL("thumb", "https://cdn.example.com/thumb.png")
		dl := newFakeDownloader()
		dl.fail("https://cdn.example.com/full.png", errors.New("origin unreachable"))
		thumb := testImage("thumb")
		dl.respond("https://cdn.example.com/thumb.png", thumb)

		r := New[string](src, Options{Downloader: dl})
		defer r.Close()

		r.SetCandidates("full", "thumb")
		if _, _, err := awaitOutcome(t, r); err == nil {
			t.Fatal("Await succeeded, want best-only failure")
		}

		r.SetDownloadsIntermediates(true)
		id, img, err := awaitOutcome(t, r)
		if err != nil {
			t.Fatalf("Await failed after enabling intermediates: %v", err)
		}
		if id != "thumb" || img != thumb {
			t.Fatalf("settled on (%q, %p), want thumb", id, img)
		}
		if n := dl.callCount("https://cdn.example.com/full.png"); n != 1 {
			t.Errorf("failed best refetched %d times across the toggle, want 1", n)
		}
	})
}

func TestResolver_Close(t *testing.T) {
	t.Run("cancels in-flight work and closes subscribers", func(t *testing.T) {
		src := newScriptedSource()
		src.setURL("slow", "https://cdn.example.com/slow.png")
		dl := newFakeDownloader()
		dl.respond("https://cdn.example.com/slow.png", testImage("slow"))
		release := dl.gate("https://cdn.example.com/slow.png")
		defer release()

		r := New[string](src, Options{Downloader: dl})
		events, stop := r.Subscribe(64)
		defer stop()

		r.SetCandidates("slow")
		waitEvent(t, events, KindDownloadStarted, "slow")
		r.Close()

		sawFinished := false
		sawClosed := false
		for _, ev := range drainEvents(t, events) {
			switch ev.Kind {
			case KindDownloadFinished:
				sawFinished = true
				if !errors.Is(ev.Err, context.Canceled) {
					t.Errorf("cancelled download finished with %v, want context.Canceled", ev.Err)
				}
			case KindClosed:
				sawClosed = true
			}
		}
		if !sawFinished || !sawClosed {
			t.Errorf("finished=%v closed=%v, want both notifications", sawFinished, sawClosed)
		}
	})

	t.Run("await reports the final state", func(t *testing.T) {
		src := newScriptedSource()
		r := New[string](src, Options{})
		r.SetCandidates()
		r.Close()
		if _, _, err := awaitOutcome(t, r); !errors.Is(err, ErrClosed) {
			t.Fatalf("Await error = %v, want ErrClosed", err)
		}

		src2 := newScriptedSource()
		img := testImage("kept")
		src2.setImage("photo", img)
		r2 := New[string](src2, Options{})
		r2.SetCandidates("photo")
		awaitResolved(t, r2)
		r2.Close()
		id, got, err := awaitOutcome(t, r2)
		if err != nil || id != "photo" || got != img {
			t.Fatalf("Await after close = (%q, %p, %v), want loaded photo", id, got, err)
		}
	})

	t.Run("mutators become no-ops", func(t *testing.T) {
		src := newScriptedSource()
		src.setImage("photo", testImage("photo"))
		r := New[string](src, Options{})
		r.SetCandidates("photo")
		awaitResolved(t, r)
		r.Close()
		r.Close()

		r.SetCandidates("other")
		if got := r.Candidates(); len(got) != 1 || got[0] != "photo" {
			t.Errorf("candidates mutated after close: %v", got)
		}

		ch, stop := r.Subscribe(1)
		stop()
		if _, ok := <-ch; ok {
			t.Error("subscription after close delivered an event")
		}
	})
}

func TestResolver_ConcurrentAccess(t *testing.T) {
	src := newScriptedSource()
	dl := newFakeDownloader()
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		u := "https://cdn.example.com/" + id + ".png"
		src.setURL(id, u)
		dl.respond(u, testImage(id))
	}

	r := New[string](src, Options{Downloader: dl, DownloadsIntermediates: true})
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				switch n {
				case 0:
					r.SetCandidates(ids[j%len(ids)], ids[(j+1)%len(ids)])
				case 1:
					r.Reload()
				case 2:
					r.LoadedIdentifier()
					r.Candidates()
					r.DisplayedIdentifier()
				case 3:
					r.SetDownloadsIntermediates(j%2 == 0)
				}
			}
		}(i)
	}
	wg.Wait()

	r.SetCandidates("a")
	id, _ := awaitResolved(t, r)
	if id != "a" {
		t.Fatalf("resolved %q after churn, want a", id)
	}
}
