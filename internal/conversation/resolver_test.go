package conversation

import (
	"context"
	"errors"
	"testing"
)

type fakeStore struct {
	listFunc    func(ctx context.Context) ([]Conversation, error)
	createFunc  func(ctx context.Context) (Conversation, error)
	listCalls   int
	createCalls int
}

func (f *fakeStore) ListConversations(ctx context.Context) ([]Conversation, error) {
	f.listCalls++
	if f.listFunc == nil {
		return nil, nil
	}
	return f.listFunc(ctx)
}

func (f *fakeStore) CreateShopConversation(ctx context.Context) (Conversation, error) {
	f.createCalls++
	if f.createFunc == nil {
		return Conversation{}, nil
	}
	return f.createFunc(ctx)
}

func TestEnsureShopConversationReturnsExisting(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		listFunc: func(ctx context.Context) ([]Conversation, error) {
			return []Conversation{
				{ID: "c-other", Kind: KindOther},
				{ID: "c-shop", Kind: KindShop},
			}, nil
		},
	}
	resolver := NewResolver(nil, store)

	for i := 0; i < 2; i++ {
		conv, err := resolver.EnsureShopConversation(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if conv.ID != "c-shop" {
			t.Fatalf("unexpected conversation: %s", conv.ID)
		}
	}
	if store.createCalls != 0 {
		t.Fatalf("expected no create calls, got %d", store.createCalls)
	}
}

func TestEnsureShopConversationCreatesWhenMissing(t *testing.T) {
	t.Parallel()

	created := false
	store := &fakeStore{}
	store.listFunc = func(ctx context.Context) ([]Conversation, error) {
		if !created {
			return []Conversation{{ID: "c-other", Kind: KindOther}}, nil
		}
		return []Conversation{{ID: "c-other", Kind: KindOther}, {ID: "c-new", Kind: KindShop}}, nil
	}
	store.createFunc = func(ctx context.Context) (Conversation, error) {
		created = true
		return Conversation{ID: "c-new", Kind: KindShop}, nil
	}
	resolver := NewResolver(nil, store)

	conv, err := resolver.EnsureShopConversation(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if conv.ID != "c-new" {
		t.Fatalf("unexpected conversation: %s", conv.ID)
	}
	if store.createCalls != 1 || store.listCalls != 2 {
		t.Fatalf("unexpected calls: create=%d list=%d", store.createCalls, store.listCalls)
	}
}

func TestEnsureShopConversationCreateFailure(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		createFunc: func(ctx context.Context) (Conversation, error) {
			return Conversation{}, errors.New("boom")
		},
	}
	_, err := NewResolver(nil, store).EnsureShopConversation(context.Background())
	if !errors.Is(err, ErrConversationUnavailable) {
		t.Fatalf("expected ErrConversationUnavailable, got %v", err)
	}
	if store.listCalls != 1 {
		t.Fatalf("expected no re-list after failed create, got %d list calls", store.listCalls)
	}
}

func TestEnsureShopConversationMissingAfterCreate(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	_, err := NewResolver(nil, store).EnsureShopConversation(context.Background())
	if !errors.Is(err, ErrConversationUnavailable) {
		t.Fatalf("expected ErrConversationUnavailable, got %v", err)
	}
}

func TestEnsureShopConversationListFailure(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		listFunc: func(ctx context.Context) ([]Conversation, error) {
			return nil, errors.New("offline")
		},
	}
	_, err := NewResolver(nil, store).EnsureShopConversation(context.Background())
	if !errors.Is(err, ErrConversationUnavailable) {
		t.Fatalf("expected ErrConversationUnavailable, got %v", err)
	}
	if store.createCalls != 0 {
		t.Fatalf("expected no create on list failure")
	}
}
