package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/cocoa-fruit/companion/adapters/hasher"
	"github.com/satriahrh/cocoa-fruit/companion/domain"
)

func sampleSettings() domain.SessionSettings {
	s := domain.DefaultSettings()
	s.APICredential = "key"
	s.Persona = jisu
	s.LastActivityAt = t0
	s.Log.Append(domain.Turn{Speaker: domain.SpeakerUser, Text: "hello", SentAt: t0})
	s.Log.Append(domain.Turn{Speaker: domain.SpeakerCounterpart, Text: "hi there!", SentAt: t0.Add(time.Second), Kind: domain.KindNudge})
	return s
}

func TestStoreSaveThenLoadRoundTrips(t *testing.T) {
	h := newHarness()
	store := h.store()
	ctx := context.Background()

	_, ok := store.Load(ctx)
	assert.False(t, ok, "nothing persisted yet")

	want := sampleSettings()
	require.NoError(t, store.Save(ctx, want))

	got, ok := store.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, want.APICredential, got.APICredential)
	assert.Equal(t, want.Persona, got.Persona)
	assert.Equal(t, want.DisplayLanguage, got.DisplayLanguage)
	assert.Equal(t, want.Theme, got.Theme)
	assert.True(t, want.LastActivityAt.Equal(got.LastActivityAt))

	turns := got.Log.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, "hello", turns[0].Text)
	assert.Equal(t, domain.KindNudge, turns[1].Kind)
	assert.True(t, turns[1].SentAt.Equal(t0.Add(time.Second)))
}

func TestStoreDocumentLayout(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.store().Save(context.Background(), sampleSettings()))

	raw, err := h.local.Get(context.Background(), DeviceKey)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "key", doc["apiCredential"])
	assert.Equal(t, "ko", doc["displayLanguage"])
	assert.Equal(t, float64(t0.UnixMilli()), doc["lastActivityAt"])

	persona := doc["persona"].(map[string]any)
	assert.Equal(t, "Jisu", persona["name"])
	assert.Equal(t, "en", persona["replyLanguage"])

	log := doc["conversationLog"].([]any)
	require.Len(t, log, 2)
	first := log[0].(map[string]any)
	assert.Equal(t, "user", first["speaker"])
	assert.Equal(t, float64(t0.UnixMilli()), first["sentAt"])
}

func TestStoreIgnoresMalformedRecords(t *testing.T) {
	cases := map[string]string{
		"not json":        `{"persona":`,
		"unknown speaker": `{"conversationLog":[{"speaker":"narrator","text":"x","sentAt":1}]}`,
		"bad language":    `{"displayLanguage":"fr"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			require.NoError(t, h.local.Put(context.Background(), DeviceKey, []byte(raw)))

			got, ok := h.store().Load(context.Background())
			assert.False(t, ok)
			assert.Nil(t, got)
		})
	}
}

func TestStoreSaveFailureIsPersistenceError(t *testing.T) {
	h := newHarness()
	h.local.SetFailing(true)

	err := h.store().Save(context.Background(), sampleSettings())
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestStoreAccountSupersedesDevice(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	store := h.store()

	device := sampleSettings()
	device.Persona.Name = "Local"
	require.NoError(t, store.Save(ctx, device))

	store.Bind(ctx, "jisu@example.com")
	assert.True(t, store.Synced())

	key := hasher.New("test").Hash([]byte("jisu@example.com"))
	raw, err := h.account.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, raw, "binding copies the device record into an empty account")

	got, ok := store.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "Local", got.Persona.Name)

	account := sampleSettings()
	account.Persona.Name = "Cloud"
	require.NoError(t, store.Save(ctx, account))

	got, ok = store.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "Cloud", got.Persona.Name)

	store.Bind(ctx, "")
	got, ok = store.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "Local", got.Persona.Name, "the device record is untouched by account saves")

	store.Bind(ctx, "jisu@example.com")
	got, ok = store.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "Cloud", got.Persona.Name, "an existing account document is never overwritten by the device record")
}

func TestStoreClearedAccountStaysEmpty(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	store := h.store()

	require.NoError(t, store.Save(ctx, sampleSettings()))
	store.Bind(ctx, "jisu@example.com")
	_, ok := store.Load(ctx)
	require.True(t, ok)

	require.NoError(t, store.Clear(ctx))
	_, ok = store.Load(ctx)
	assert.False(t, ok, "the device record does not come back after a reset")

	store.Bind(ctx, "")
	_, ok = store.Load(ctx)
	assert.False(t, ok, "the device record is wiped with the account")

	store.Bind(ctx, "jisu@example.com")
	_, ok = store.Load(ctx)
	assert.False(t, ok, "nothing is left to seed from")
}

func TestStoreLastSaveWins(t *testing.T) {
	h := newHarness()
	store := h.store()
	ctx := context.Background()

	older, newer := store.nextSeq(), store.nextSeq()

	newDoc, err := encodeSettings(sampleSettings())
	require.NoError(t, err)
	stale := sampleSettings()
	stale.Persona.Name = "Stale"
	oldDoc, err := encodeSettings(stale)
	require.NoError(t, err)

	require.NoError(t, store.write(ctx, newer, h.local, DeviceKey, newDoc))
	require.NoError(t, store.write(ctx, older, h.local, DeviceKey, oldDoc))

	got, ok := store.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "Jisu", got.Persona.Name)
}

func TestStoreClearDiscardsPendingSaves(t *testing.T) {
	h := newHarness()
	store := h.store()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSettings()))
	pending := store.nextSeq()
	require.NoError(t, store.Clear(ctx))

	doc, err := encodeSettings(sampleSettings())
	require.NoError(t, err)
	require.NoError(t, store.write(ctx, pending, h.local, DeviceKey, doc))

	_, ok := store.Load(ctx)
	assert.False(t, ok)
}

func TestStoreSaveAsyncReportsOutcome(t *testing.T) {
	h := newHarness()
	store := h.store()
	store.Bind(context.Background(), "jisu@example.com")

	results := make(chan error, 1)
	store.SaveAsync(sampleSettings(), func(err error) { results <- err })
	store.Wait()
	require.NoError(t, <-results)

	got, ok := store.Load(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2, got.Log.Len())

	h.local.SetFailing(true)
	store.Bind(context.Background(), "")
	store.SaveAsync(sampleSettings(), func(err error) { results <- err })
	store.Wait()
	err := <-results
	assert.True(t, errors.Is(err, domain.ErrPersistence))
}
