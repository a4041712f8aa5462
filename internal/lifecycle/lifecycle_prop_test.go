package lifecycle

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/frontdesk/models"
	"pgregory.net/rapid"
)

// Every request leaves PENDING exactly once; later transitions fail and change nothing.
func TestTransitionsHappenOnceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture()
		ctx := context.Background()

		n := rapid.IntRange(1, 4).Draw(t, "requests")
		ids := make([]string, n)
		model := make(map[string]models.RequestStatus, n)
		for i := range ids {
			req, err := f.lc.Create(ctx, "call", "+1555", "question", nil)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			ids[i] = req.ID
			model[req.ID] = models.RequestStatusPending
		}
		f.clock.Advance(48 * time.Hour)

		ops := rapid.SliceOfN(rapid.SampledFrom([]string{"resolve", "timeout", "sweep"}), 0, 20).Draw(t, "ops")
		for i, op := range ops {
			if op == "sweep" {
				var want []string
				for _, id := range ids {
					if model[id] == models.RequestStatusPending {
						want = append(want, id)
					}
				}
				out, err := f.lc.TimeoutStale(ctx, 24*time.Hour)
				if err != nil {
					t.Fatalf("sweep: %v", err)
				}
				got := make([]string, 0, len(out))
				for _, r := range out {
					got = append(got, r.ID)
					model[r.ID] = models.RequestStatusTimeout
				}
				sort.Strings(got)
				sort.Strings(want)
				if strings.Join(got, ",") != strings.Join(want, ",") {
					t.Fatalf("sweep returned %v, want %v", got, want)
				}
				continue
			}

			id := ids[rapid.IntRange(0, n-1).Draw(t, "target")]
			before, err := f.lc.Get(ctx, id)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if op == "resolve" {
				_, err = f.lc.Resolve(ctx, id, "answer", "")
			} else {
				_, err = f.lc.Timeout(ctx, id)
			}
			after, gerr := f.lc.Get(ctx, id)
			if gerr != nil {
				t.Fatalf("get: %v", gerr)
			}

			if model[id] == models.RequestStatusPending {
				if err != nil {
					t.Fatalf("op %d %s on pending request failed: %v", i, op, err)
				}
				if op == "resolve" {
					model[id] = models.RequestStatusResolved
				} else {
					model[id] = models.RequestStatusTimeout
				}
			} else {
				var fe models.FinalizedError
				if !errors.As(err, &fe) || fe.Status != model[id] {
					t.Fatalf("op %d %s on %s request: got %v", i, op, model[id], err)
				}
				if before.Status != after.Status || (before.ResolvedAt == nil) != (after.ResolvedAt == nil) {
					t.Fatalf("finalized request changed: %+v -> %+v", before, after)
				}
			}
			if after.Status != model[id] {
				t.Fatalf("status %s, model %s", after.Status, model[id])
			}
			if (after.ResolvedAt != nil) != (after.Status == models.RequestStatusResolved) {
				t.Fatalf("resolvedAt present=%v with status %s", after.ResolvedAt != nil, after.Status)
			}
		}

		resolved := 0
		for _, s := range model {
			if s == models.RequestStatusResolved {
				resolved++
			}
		}
		if len(f.learner.calls) != resolved {
			t.Fatalf("learner saw %d resolutions, want %d", len(f.learner.calls), resolved)
		}
	})
}
