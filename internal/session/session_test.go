package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/nobodyplayer/byte5-autotestgen/internal/genclient"
	"github.com/nobodyplayer/byte5-autotestgen/internal/history"
	"github.com/nobodyplayer/byte5-autotestgen/internal/recovery"
	"github.com/nobodyplayer/byte5-autotestgen/internal/stream"
	"github.com/nobodyplayer/byte5-autotestgen/internal/testcase"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStreamer struct {
	chunks []string
	err    error
}

func (f *fakeStreamer) Generate(ctx context.Context, req genclient.GenerateRequest, onChunk func(string)) error {
	for _, c := range f.chunks {
		onChunk(c)
	}
	return f.err
}

type memSaver struct {
	mu   sync.Mutex
	runs []history.Run
}

func (m *memSaver) Save(ctx context.Context, run history.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

const discreteRecord = `<!-- JSON_DATA: {"id":"TC-7","title":"Login","description":"valid login","steps":[{"step_number":1,"description":"submit","expected_result":"dashboard"}]} -->`

func TestRunRecoversRecordsAndForwardsChunks(t *testing.T) {
	chunks := []string{"# Generating test cases...\n\n", "## TC-7: Login\n", discreteRecord[:20], discreteRecord[20:], "\n"}
	saver := &memSaver{}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runner := NewRunner(&fakeStreamer{chunks: chunks}, WithSaver(saver), WithClock(func() time.Time { return fixed }))

	var mu sync.Mutex
	var seen []string
	sess, err := runner.Run(context.Background(), genclient.GenerateRequest{PRDText: "prd"}, func(c string) {
		mu.Lock()
		seen = append(seen, c)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff(chunks, seen); diff != "" {
		t.Fatalf("observer chunks differ (-want +got):\n%s", diff)
	}

	snap := sess.Snapshot()
	if snap.Generating || snap.State != stream.StateComplete {
		t.Fatalf("unexpected session state: generating=%v state=%s", snap.Generating, snap.State)
	}
	if snap.Output != strings.Join(chunks, "") {
		t.Fatalf("output differs from stream: %q", snap.Output)
	}
	if snap.Result.Tier != recovery.TierDiscrete || len(snap.Result.Records) != 1 || snap.Result.Records[0].ID != "TC-7" {
		t.Fatalf("unexpected result: %#v", snap.Result)
	}
	if snap.ID == "" || !snap.StartedAt.Equal(fixed) || !snap.CompletedAt.Equal(fixed) {
		t.Fatalf("unexpected identity/timestamps: %#v", snap)
	}

	if len(saver.runs) != 1 || saver.runs[0].ID != snap.ID || saver.runs[0].RawText != snap.Output || saver.runs[0].State != "complete" {
		t.Fatalf("unexpected saved runs: %#v", saver.runs)
	}
}

func TestRunTransportErrorKeepsPartialOutput(t *testing.T) {
	boom := &genclient.TransportError{Err: errors.New("connection reset")}
	saver := &memSaver{}
	runner := NewRunner(&fakeStreamer{chunks: []string{"## TC-1: half\n", "no payload yet"}, err: boom}, WithSaver(saver))

	sess, err := runner.Run(context.Background(), genclient.GenerateRequest{PRDText: "prd"}, nil)
	if err != nil {
		t.Fatalf("partial output must not fail the run: %v", err)
	}
	snap := sess.Snapshot()
	if snap.State != stream.StateError || !errors.Is(snap.TransportErr, boom) {
		t.Fatalf("expected error state with transport error, got %s %v", snap.State, snap.TransportErr)
	}
	if !snap.Result.Placeholder() || !testcase.IsPlaceholder(snap.Result.Records[0]) {
		t.Fatalf("expected placeholder result, got %#v", snap.Result)
	}
	if len(saver.runs) != 1 || saver.runs[0].TransportError == "" {
		t.Fatalf("expected interrupted run to be saved with its error: %#v", saver.runs)
	}
}

func TestRunNothingReceived(t *testing.T) {
	refused := errors.New("dial tcp: connection refused")
	saver := &memSaver{}
	runner := NewRunner(&fakeStreamer{err: refused}, WithSaver(saver))

	sess, err := runner.Run(context.Background(), genclient.GenerateRequest{PRDText: "prd"}, nil)
	if !errors.Is(err, recovery.ErrEmptyInput) || !errors.Is(err, refused) {
		t.Fatalf("expected empty input joined with transport error, got %v", err)
	}
	snap := sess.Snapshot()
	if snap.Generating || snap.State != stream.StateError || !errors.Is(snap.ExtractErr, recovery.ErrEmptyInput) {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
	if len(saver.runs) != 0 {
		t.Fatal("empty runs should not be saved")
	}
}

func TestRunEmptySuccessfulStream(t *testing.T) {
	sess, err := NewRunner(&fakeStreamer{}).Run(context.Background(), genclient.GenerateRequest{PRDText: "prd"}, nil)
	if !errors.Is(err, recovery.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if sess.Snapshot().State != stream.StateComplete {
		t.Fatalf("unexpected state %s", sess.Snapshot().State)
	}
}

func TestRunsDoNotShareState(t *testing.T) {
	runner := NewRunner(&fakeStreamer{chunks: []string{discreteRecord}})
	a, _ := runner.Run(context.Background(), genclient.GenerateRequest{PRDText: "a"}, nil)
	b, _ := runner.Run(context.Background(), genclient.GenerateRequest{PRDText: "b"}, nil)
	if a.ID() == b.ID() {
		t.Fatal("sessions share an id")
	}
	if a.Snapshot().Output != discreteRecord || b.Snapshot().Output != discreteRecord {
		t.Fatal("session output leaked between runs")
	}
}
