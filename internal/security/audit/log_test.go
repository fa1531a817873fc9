// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type recordingSink struct {
	mu      sync.Mutex
	records []SealedRecord
	err     error
}

func (s *recordingSink) Write(_ context.Context, rec SealedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) last(t *testing.T) SealedRecord {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.records)
	return s.records[len(s.records)-1]
}

func (s *recordingSink) all() []SealedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SealedRecord(nil), s.records...)
}

// gatedSink reports each Write on entered and holds it until release is
// closed.
type gatedSink struct {
	entered chan string
	release chan struct{}

	mu     sync.Mutex
	order  []string
	active int
	peak   int
}

func newGatedSink() *gatedSink {
	return &gatedSink{entered: make(chan string, 8), release: make(chan struct{})}
}

func (s *gatedSink) Write(_ context.Context, rec SealedRecord) error {
	s.mu.Lock()
	s.active++
	if s.active > s.peak {
		s.peak = s.active
	}
	s.mu.Unlock()

	s.entered <- string(rec.Message)
	<-s.release

	s.mu.Lock()
	s.active--
	s.order = append(s.order, string(rec.Message))
	s.mu.Unlock()
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []Notification
	err   error
	panic bool
}

func (n *recordingNotifier) Notify(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	if n.panic {
		panic("smtp exploded")
	}
	return n.err
}

func newTestLog(t *testing.T, sink Sink, notifier Notifier, mutate func(*Options)) *IntegrityLog {
	t.Helper()
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	l, err := NewIntegrityLog(sink, notifier, opts)
	require.NoError(t, err)
	return l
}

// =============================================================================
// CONSTRUCTION AND CONFIGURATION
// =============================================================================

func TestNewIntegrityLog_Validation(t *testing.T) {
	_, err := NewIntegrityLog(nil, nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewIntegrityLog(&recordingSink{}, nil, Options{MaxEntryLength: -1})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	l, err := NewIntegrityLog(&recordingSink{}, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxEntryLength, l.Options().MaxEntryLength)
}

func TestConfigure_InvalidUpdateKeepsPreviousSnapshot(t *testing.T) {
	l := newTestLog(t, &recordingSink{}, nil, func(o *Options) { o.Name = "before" })

	err := l.Configure(func(o *Options) {
		o.Name = "after"
		o.MaxEntryLength = -5
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, "before", l.Options().Name)

	require.NoError(t, l.Configure(func(o *Options) { o.Name = "after" }))
	assert.Equal(t, "after", l.Options().Name)
}

// =============================================================================
// RECORD
// =============================================================================

func TestRecord_InvalidArguments(t *testing.T) {
	sink := &recordingSink{}
	l := newTestLog(t, sink, nil, nil)

	tests := []struct {
		name string
		item Loggable
	}{
		{"nil interface", nil},
		{"nil entry", (*Entry)(nil)},
		{"nil activity", (*ActivityEntry)(nil)},
		{"nil audit entry", (*AuditEntry)(nil)},
		{"nil suspicious entry", (*SuspiciousEntry)(nil)},
		{"empty activity", &ActivityEntry{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.Record(context.Background(), tt.item)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("Record() error = %v, want ErrInvalidArgument", err)
			}
		})
	}

	if n := len(sink.all()); n != 0 {
		t.Errorf("sink received %d records, want 0", n)
	}
}

func TestRecord_SealsAndPersists(t *testing.T) {
	sink := &recordingSink{}
	secret, err := NewSecret([]byte("persist-key"))
	require.NoError(t, err)
	l := newTestLog(t, sink, nil, func(o *Options) { o.Secret = secret })

	entry, err := NewEntry(Info, time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC), "backup completed")
	require.NoError(t, err)
	require.NoError(t, l.Record(context.Background(), entry))

	rec := sink.last(t)
	assert.Equal(t, Info, rec.Category)
	assert.Equal(t, EncodeTimestamp(entry.Timestamp()), rec.Timestamp)
	assert.Equal(t, "backup completed", string(rec.Message))

	key := DeriveKey([]byte("persist-key"))
	assert.Equal(t, ComputeMAC(key, rec.Timestamp, rec.Message), rec.MAC)

	verified, err := Verify(secret, rec)
	require.NoError(t, err)
	assert.True(t, verified.Valid())
	assert.Equal(t, uint64(1), l.Stats().Recorded)
}

func TestRecord_TruncatesBeforeBinding(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		message string
		want    string
	}{
		{"ascii over limit", 5, "abcdefghij", "abcde"},
		{"exactly at limit", 5, "abcde", "abcde"},
		{"multibyte counted as characters", 3, "héllo wörld", "hél"},
		{"emoji", 2, "🔒🔑🗝", "🔒🔑"},
		{"unbounded", 0, strings.Repeat("x", 10000), strings.Repeat("x", 10000)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sink := &recordingSink{}
			l := newTestLog(t, sink, nil, func(o *Options) { o.MaxEntryLength = tc.limit })

			entry, err := NewEntry(Warning, time.Now(), tc.message)
			require.NoError(t, err)
			require.NoError(t, l.Record(context.Background(), entry))

			rec := sink.last(t)
			assert.Equal(t, tc.want, string(rec.Message))
			if tc.limit > 0 {
				assert.LessOrEqual(t, utf8.RuneCount(rec.Message), tc.limit)
			}
			assert.Equal(t, ComputeMAC(DeriveKey(nil), rec.Timestamp, []byte(tc.want)), rec.MAC,
				"MAC must cover the stored (truncated) content")

			// The caller's entry is untouched.
			assert.Equal(t, tc.message, entry.Message())
		})
	}
}

func TestRecord_DefaultLimit(t *testing.T) {
	sink := &recordingSink{}
	l := newTestLog(t, sink, nil, nil)

	entry, err := NewEntry(Info, time.Now(), strings.Repeat("a", DefaultMaxEntryLength+100))
	require.NoError(t, err)
	require.NoError(t, l.Record(context.Background(), entry))
	assert.Len(t, sink.last(t).Message, DefaultMaxEntryLength)
}

func TestRecord_StructuredEntriesEndToEnd(t *testing.T) {
	sink := &recordingSink{}
	l := newTestLog(t, sink, nil, nil)

	ok, err := NewAuditEntry(true, time.Now(), "alice", "10.0.0.1", "logged in")
	require.NoError(t, err)
	require.NoError(t, l.Record(context.Background(), ok))

	rec := sink.last(t)
	assert.Equal(t, AuditSuccess, rec.Category)
	assert.Equal(t, "User alice (from 10.0.0.1) logged in", string(rec.Message))

	failed, err := NewAuditEntry(false, time.Now(), "alice", "10.0.0.1", "logged in")
	require.NoError(t, err)
	require.NoError(t, l.Record(context.Background(), failed))

	rec = sink.last(t)
	assert.Equal(t, AuditFailure, rec.Category)
	assert.Equal(t, "User alice (from 10.0.0.1) logged in", string(rec.Message))

	sus, err := NewSuspiciousEntry(time.Now(), "mallory", "198.51.100.7", "scanned admin endpoints")
	require.NoError(t, err)
	require.NoError(t, l.Record(context.Background(), sus))
	assert.Equal(t, SuspiciousActivity, sink.last(t).Category)
}

// =============================================================================
// FAILURE ESCALATION
// =============================================================================

func TestRecord_SinkFailureWithNotifier(t *testing.T) {
	sinkErr := errors.New("disk full")
	notifier := &recordingNotifier{}
	l := newTestLog(t, &recordingSink{err: sinkErr}, notifier, func(o *Options) {
		o.NotifyTo = "secops@example.com"
		o.Name = "payments"
		o.MaxEntryLength = 10
	})

	entry, err := NewEntry(Error, time.Now(), "0123456789-overflow")
	require.NoError(t, err)

	err = l.Record(context.Background(), entry)
	require.Error(t, err)
	assert.ErrorIs(t, err, sinkErr)
	assert.ErrorIs(t, err, ErrWriteFailed)

	require.Len(t, notifier.sent, 1)
	n := notifier.sent[0]
	assert.Equal(t, "[payments] "+FailureSubject, n.Subject)
	assert.Equal(t, "secops@example.com", n.To)
	assert.Equal(t, "secops@example.com", n.From, "sender defaults to the notification address")
	assert.Contains(t, n.Body, "0123456789")
	assert.NotContains(t, n.Body, "overflow", "report carries the truncated message")
	assert.Contains(t, n.Body, "disk full")

	stats := l.Stats()
	assert.Equal(t, uint64(1), stats.WriteFailures)
	assert.Equal(t, uint64(0), stats.Recorded)
	assert.ErrorIs(t, stats.LastFailure, sinkErr)
	assert.False(t, stats.LastFailureAt.IsZero())
}

func TestRecord_SinkFailureWithoutNotifier(t *testing.T) {
	sinkErr := errors.New("permission denied")
	entry, err := NewEntry(Error, time.Now(), "x")
	require.NoError(t, err)

	t.Run("no address", func(t *testing.T) {
		l := newTestLog(t, &recordingSink{err: sinkErr}, nil, nil)
		err := l.Record(context.Background(), entry)
		assert.ErrorIs(t, err, sinkErr)
	})

	t.Run("address but no notifier", func(t *testing.T) {
		l := newTestLog(t, &recordingSink{err: sinkErr}, nil, func(o *Options) { o.NotifyTo = "ops@example.com" })
		err := l.Record(context.Background(), entry)
		assert.ErrorIs(t, err, sinkErr)
	})

	t.Run("notifier but no address", func(t *testing.T) {
		notifier := &recordingNotifier{}
		l := newTestLog(t, &recordingSink{err: sinkErr}, notifier, nil)
		err := l.Record(context.Background(), entry)
		assert.ErrorIs(t, err, sinkErr)
		assert.Empty(t, notifier.sent)
	})
}

func TestRecord_NotifierFailureDoesNotMaskSinkFailure(t *testing.T) {
	sinkErr := errors.New("sink down")
	entry, err := NewEntry(Error, time.Now(), "x")
	require.NoError(t, err)

	tests := []struct {
		name     string
		notifier *recordingNotifier
	}{
		{"notifier error", &recordingNotifier{err: errors.New("smtp refused")}},
		{"notifier panic", &recordingNotifier{panic: true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := newTestLog(t, &recordingSink{err: sinkErr}, tc.notifier, func(o *Options) {
				o.NotifyTo = "ops@example.com"
				o.NotifyFrom = "auditlog@example.com"
			})
			err := l.Record(context.Background(), entry)
			assert.ErrorIs(t, err, sinkErr)
			assert.NotContains(t, err.Error(), "smtp")
			require.Len(t, tc.notifier.sent, 1)
			assert.Equal(t, "auditlog@example.com", tc.notifier.sent[0].From)
			assert.Equal(t, FailureSubject, tc.notifier.sent[0].Subject)
			assert.Equal(t, uint64(1), l.Stats().NotifyFailures)
		})
	}
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestRecord_ConcurrentReconfiguration(t *testing.T) {
	sink := &recordingSink{}
	l := newTestLog(t, sink, nil, func(o *Options) { o.SerializeWrites = true })

	secretA, err := NewSecret([]byte("key-A"))
	require.NoError(t, err)
	secretB, err := NewSecret([]byte("key-B"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		i := 0
		for {
			select {
			case <-stop:
				return
			default:
			}
			s := secretA
			if i%2 == 1 {
				s = secretB
			}
			_ = l.Configure(func(o *Options) { o.Secret = s })
			i++
		}
	}()

	const writers, perWriter = 8, 50
	var recWG sync.WaitGroup
	for w := 0; w < writers; w++ {
		recWG.Add(1)
		go func() {
			defer recWG.Done()
			for i := 0; i < perWriter; i++ {
				entry, err := NewEntry(Info, time.Now(), "concurrent entry")
				if err != nil {
					t.Error(err)
					return
				}
				if err := l.Record(context.Background(), entry); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	recWG.Wait()
	close(stop)
	wg.Wait()

	// Every record verifies under exactly one of the two keys: no call mixed
	// configuration snapshots.
	require.Len(t, sink.records, writers*perWriter)
	for i, rec := range sink.records {
		a, err := Verify(secretA, rec)
		require.NoError(t, err)
		b, err := Verify(secretB, rec)
		require.NoError(t, err)
		assert.True(t, a.Valid() != b.Valid(), "record %d verified under %v/%v", i, a.Valid(), b.Valid())
	}
}

func TestRecord_SerializeWrites(t *testing.T) {
	const wait = 200 * time.Millisecond

	tests := []struct {
		name      string
		serialize bool
	}{
		{"flag off lets writes overlap", false},
		{"flag on holds the second write", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := newGatedSink()
			l := newTestLog(t, sink, nil, func(o *Options) { o.SerializeWrites = tt.serialize })

			var wg sync.WaitGroup
			record := func(msg string) {
				defer wg.Done()
				entry, err := NewEntry(Info, time.Now(), msg)
				if err != nil {
					t.Errorf("NewEntry(%q): %v", msg, err)
					return
				}
				if err := l.Record(context.Background(), entry); err != nil {
					t.Errorf("Record(%q): %v", msg, err)
				}
			}

			wg.Add(1)
			go record("first")
			select {
			case got := <-sink.entered:
				if got != "first" {
					t.Fatalf("first write = %q, want %q", got, "first")
				}
			case <-time.After(5 * time.Second):
				t.Fatal("first write never reached the sink")
			}

			wg.Add(1)
			go record("second")

			select {
			case <-sink.entered:
				if tt.serialize {
					t.Error("second write reached the sink while the first was in progress")
				}
			case <-time.After(wait):
				if !tt.serialize {
					t.Error("second write was blocked without SerializeWrites")
				}
			}

			close(sink.release)
			wg.Wait()

			sink.mu.Lock()
			defer sink.mu.Unlock()
			wantPeak := 2
			if tt.serialize {
				wantPeak = 1
				if len(sink.order) != 2 || sink.order[0] != "first" || sink.order[1] != "second" {
					t.Errorf("sink order = %v, want [first second]", sink.order)
				}
			}
			if sink.peak != wantPeak {
				t.Errorf("concurrent writes = %d, want %d", sink.peak, wantPeak)
			}
		})
	}
}
