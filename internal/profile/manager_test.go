package profile

import (
	"context"
	"testing"
	"time"
)

type fakeStore struct {
	data  map[int64]map[string]string
	reads int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[int64]map[string]string)}
}

func (f *fakeStore) SetProfileKey(_ context.Context, userID int64, key, value string) error {
	if f.data[userID] == nil {
		f.data[userID] = make(map[string]string)
	}
	f.data[userID][key] = value
	return nil
}

func (f *fakeStore) GetAllProfileKeys(_ context.Context, userID int64) (map[string]string, error) {
	f.reads++
	out := make(map[string]string, len(f.data[userID]))
	for k, v := range f.data[userID] {
		out[k] = v
	}
	return out, nil
}

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func TestGetProfileAssemblesFields(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	store.SetProfileKey(ctx, 3, "name.first", "Ada")
	store.SetProfileKey(ctx, 3, "name.last", "Lovelace")
	store.SetProfileKey(ctx, 3, "contact.email", "ada@example.com")
	store.SetProfileKey(ctx, 3, "links.linkedin", "https://linkedin.com/in/ada")
	store.SetProfileKey(ctx, 3, "match.threshold", "80")
	store.SetProfileKey(ctx, 3, "plan", "pro")

	m := NewManager(store)
	p, err := m.GetProfile(ctx, 3)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.FullName() != "Ada Lovelace" {
		t.Errorf("FullName = %q", p.FullName())
	}
	if p.Email != "ada@example.com" || p.LinkedIn != "https://linkedin.com/in/ada" {
		t.Errorf("unexpected profile: %+v", p)
	}
	if m.MatchThreshold(ctx, 3, 70) != 80 {
		t.Errorf("MatchThreshold should use profile override")
	}
	if m.PlanID(ctx, 3) != "pro" {
		t.Errorf("PlanID = %q, want pro", m.PlanID(ctx, 3))
	}
}

func TestProfileDefaults(t *testing.T) {
	m := NewManager(newFakeStore())
	ctx := context.Background()

	if m.MatchThreshold(ctx, 9, 70) != 70 {
		t.Error("unset threshold should use the default")
	}
	if m.PlanID(ctx, 9) != "free" {
		t.Error("unset plan should default to free")
	}
}

func TestCacheTTLAndInvalidation(t *testing.T) {
	store := newFakeStore()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	m := NewManagerWithClock(store, clock, time.Minute)
	ctx := context.Background()

	m.GetProfile(ctx, 3)
	m.GetProfile(ctx, 3)
	if store.reads != 1 {
		t.Errorf("expected 1 store read within TTL, got %d", store.reads)
	}

	clock.now = clock.now.Add(2 * time.Minute)
	m.GetProfile(ctx, 3)
	if store.reads != 2 {
		t.Errorf("expected re-read after TTL, got %d reads", store.reads)
	}

	// SetField invalidates only the touched user.
	m.GetProfile(ctx, 4)
	reads := store.reads
	if err := m.SetField(ctx, 3, "name.first", "Ada"); err != nil {
		t.Fatal(err)
	}
	m.GetProfile(ctx, 4)
	if store.reads != reads {
		t.Errorf("other user's cache entry should survive SetField")
	}
	m.GetProfile(ctx, 3)
	if store.reads != reads+1 {
		t.Errorf("updated user should be re-read")
	}
}

func TestExtractResumeTextPlain(t *testing.T) {
	text, err := ExtractResumeText([]byte("plain resume text"), "text/plain")
	if err != nil {
		t.Fatalf("ExtractResumeText: %v", err)
	}
	if text != "plain resume text" {
		t.Errorf("got %q", text)
	}
}

func TestExtractResumeTextBadPDF(t *testing.T) {
	if _, err := ExtractResumeText([]byte("not a pdf"), "application/pdf"); err == nil {
		t.Fatal("expected error for malformed pdf")
	}
}
