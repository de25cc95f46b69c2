package dispatch

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasbank/greeting-engine/internal/dates"
	"github.com/atlasbank/greeting-engine/internal/delivery"
	"github.com/atlasbank/greeting-engine/internal/domain"
	"github.com/atlasbank/greeting-engine/internal/greeting"
)

type memStores struct {
	people   []domain.Person
	holidays []domain.Holiday
}

func (m *memStores) GetAll(context.Context) ([]domain.Person, error) { return m.people, nil }

func (m *memStores) FindByBirthday(_ context.Context, dm dates.DayMonth) ([]domain.Person, error) {
	var out []domain.Person
	for _, p := range m.people {
		if dm.MatchesStored(p.BirthDate) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStores) FindByDate(_ context.Context, dm dates.DayMonth) ([]domain.Holiday, error) {
	var out []domain.Holiday
	for _, h := range m.holidays {
		if dm.MatchesStored(h.DateFixed) {
			out = append(out, h)
		}
	}
	return out, nil
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls []domain.GenerationRequest
	err   error
}

func (f *fakeGenerator) Generate(_ context.Context, req domain.GenerationRequest, _ greeting.Options) (string, *domain.QualityScore, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.err != nil {
		return "", nil, f.err
	}
	return req.ClientName + ", поздравляем с " + req.EventType, nil, nil
}

type recordingDeliverer struct {
	mu     sync.Mutex
	sent   []string // chatID + "|" + text
	failOn string   // chatID that always fails
}

func (r *recordingDeliverer) Deliver(_ context.Context, chatID, text string, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if chatID == r.failOn {
		return assert.AnError
	}
	r.sent = append(r.sent, chatID+"|"+text)
	return nil
}

func newTestDispatcher(t *testing.T, stores *memStores, gen Generator, del delivery.Deliverer) *Dispatcher {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	d := New(stores, stores, gen, del, rdb, greeting.Options{})
	d.SetConcurrency(2)
	return d
}

// The March 8 scenario: one woman whose birthday falls on a holiday that
// targets women receives two independent greetings.
func TestDispatchDate_BirthdayAndHolidayBothDelivered(t *testing.T) {
	stores := &memStores{
		people: []domain.Person{
			{ID: 1, Name: "Анна", Gender: domain.GenderFemale, Role: domain.RoleClient,
				BirthDate: "1985-03-08", ChatID: "chat-anna"},
			{ID: 2, Name: "Борис", Gender: domain.GenderMale, Role: domain.RoleClient,
				BirthDate: "1990-07-01", ChatID: "chat-boris"},
		},
		holidays: []domain.Holiday{
			{ID: 10, Name: "8 Марта", DateFixed: "03-08", Description: "для женщин"},
		},
	}
	gen := &fakeGenerator{}
	del := &recordingDeliverer{}
	d := newTestDispatcher(t, stores, gen, del)

	for _, date := range []string{"08.03", "2024-03-08"} {
		t.Run(date, func(t *testing.T) {
			del.sent = nil
			gen.calls = nil
			// Fresh dedup state per input form.
			d.redis.FlushAll(context.Background())

			_, err := d.DispatchDate(context.Background(), date)
			require.NoError(t, err)

			require.Len(t, del.sent, 2, "Анна gets a birthday and a holiday greeting")
			for _, s := range del.sent {
				assert.True(t, strings.HasPrefix(s, "chat-anna|"), "only Анна is eligible, got %q", s)
			}
			kinds := map[string]bool{}
			for _, c := range gen.calls {
				kinds[c.EventType] = true
			}
			assert.True(t, kinds["день_рождения"], "birthday request missing")
			assert.True(t, kinds["8_марта"], "holiday request missing")
		})
	}
}

func TestDispatchDate_RerunIsDeduplicated(t *testing.T) {
	stores := &memStores{
		people: []domain.Person{
			{ID: 1, Name: "Анна", Gender: domain.GenderFemale, BirthDate: "1985-03-08", ChatID: "chat-anna"},
		},
	}
	gen := &fakeGenerator{}
	del := &recordingDeliverer{}
	d := newTestDispatcher(t, stores, gen, del)

	_, err := d.DispatchDate(context.Background(), "08.03")
	require.NoError(t, err)
	_, err = d.DispatchDate(context.Background(), "08.03")
	require.NoError(t, err)

	assert.Len(t, del.sent, 1, "second run must not re-greet")
	assert.Equal(t, int64(1), d.Stats().Deduplicated)
}

func TestDispatchDate_FailedDeliveryReleasesClaim(t *testing.T) {
	stores := &memStores{
		people: []domain.Person{
			{ID: 1, Name: "Анна", BirthDate: "1985-03-08", ChatID: "chat-anna"},
		},
	}
	gen := &fakeGenerator{}
	del := &recordingDeliverer{failOn: "chat-anna"}
	d := newTestDispatcher(t, stores, gen, del)

	_, err := d.DispatchDate(context.Background(), "08.03")
	require.NoError(t, err, "pair failure must not abort the run")
	assert.Equal(t, int64(1), d.Stats().Failures)

	// After the transport recovers, a re-run reaches the person again.
	del.failOn = ""
	_, err = d.DispatchDate(context.Background(), "08.03")
	require.NoError(t, err)
	assert.Len(t, del.sent, 1)
}

func TestDispatchDate_GenerationFailureFallsBack(t *testing.T) {
	stores := &memStores{
		people: []domain.Person{
			{ID: 1, Name: "Анна", BirthDate: "1985-03-08", ChatID: "chat-anna"},
		},
	}
	gen := &fakeGenerator{err: assert.AnError}
	del := &recordingDeliverer{}
	d := newTestDispatcher(t, stores, gen, del)

	_, err := d.DispatchDate(context.Background(), "08.03")
	require.NoError(t, err)

	require.Len(t, del.sent, 1)
	assert.Contains(t, del.sent[0], "Анна", "fallback keeps personalization")
	assert.Contains(t, del.sent[0], "С уважением", "fallback carries the signature")
}

func TestDispatchDate_UnparseableDate(t *testing.T) {
	d := newTestDispatcher(t, &memStores{}, &fakeGenerator{}, &recordingDeliverer{})
	_, err := d.DispatchDate(context.Background(), "восьмое марта")
	assert.Error(t, err)
}

func TestDispatchDate_UnactivatedPeopleSkipped(t *testing.T) {
	stores := &memStores{
		people: []domain.Person{
			{ID: 1, Name: "Анна", BirthDate: "1985-03-08", ChatID: ""},
		},
	}
	del := &recordingDeliverer{}
	d := newTestDispatcher(t, stores, &fakeGenerator{}, del)

	_, err := d.DispatchDate(context.Background(), "08.03")
	require.NoError(t, err)
	assert.Empty(t, del.sent)
}

func TestStartStop(t *testing.T) {
	d := newTestDispatcher(t, &memStores{}, &fakeGenerator{}, &recordingDeliverer{})

	require.NoError(t, d.Start())
	assert.Error(t, d.Start(), "double Start must fail")
	d.Stop()

	// Stop is idempotent.
	d.Stop()
	assert.Equal(t, int64(1), d.Stats().RunsCompleted, "startup tick dispatches today once")
}
