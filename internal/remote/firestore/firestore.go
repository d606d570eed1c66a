// Package firestore stores remote documents in Cloud Firestore under
// users/{uid}/{collection}/{key}.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	fs "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	goption "google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"fisse/internal/core"
	"fisse/internal/remote"
)

// Ensure interface conformance
var (
	_ remote.DocumentStore = (*Store)(nil)
	_ remote.Closer        = (*Store)(nil)
)

// retryAfter is how long the store reports itself unreachable after a
// transport failure before letting callers try again.
const retryAfter = 30 * time.Second

type Store struct {
	client *fs.Client
	userID string

	mu        sync.Mutex
	downSince time.Time
	now       func() time.Time
}

type document struct {
	Body      string    `firestore:"body"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type Config struct {
	ProjectID       string
	CredentialsFile string
	UserID          string
}

// New connects to Firestore. Without a credentials file it falls back to
// application default credentials.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("missing firestore project id")
	}

	var opts []goption.ClientOption
	if cfg.CredentialsFile != "" {
		credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		opts = append(opts, goption.WithCredentialsJSON(credentialsJSON))
	}

	client, err := fs.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}

	slog.InfoContext(ctx, "Firestore client created",
		"project_id", cfg.ProjectID,
		"has_credentials_file", cfg.CredentialsFile != "")

	return &Store{client: client, userID: cfg.UserID, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) collection(name string) (*fs.CollectionRef, error) {
	if s.userID == "" {
		return nil, core.ErrNotAuthenticated
	}
	return s.client.Collection("users").Doc(s.userID).Collection(name), nil
}

func (s *Store) Reachable(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downSince.IsZero() || s.now().Sub(s.downSince) > retryAfter
}

func (s *Store) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, false, err
	}
	snap, err := col.Doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		s.markUp()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, s.wrap("get", err)
	}
	s.markUp()

	var doc document
	if err := snap.DataTo(&doc); err != nil {
		return nil, false, fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return []byte(doc.Body), true, nil
}

func (s *Store) Put(ctx context.Context, collection, key string, body []byte) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	if _, err := col.Doc(key).Set(ctx, document{Body: string(body), UpdatedAt: s.now().UTC()}); err != nil {
		return s.wrap("put", err)
	}
	s.markUp()
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	if _, err := col.Doc(key).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return s.wrap("delete", err)
	}
	s.markUp()
	return nil
}

func (s *Store) List(ctx context.Context, collection string) (map[string][]byte, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte)
	it := col.Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, s.wrap("list", err)
		}
		var doc document
		if err := snap.DataTo(&doc); err != nil {
			slog.WarnContext(ctx, "Skipping undecodable remote document",
				"collection", collection,
				"key", snap.Ref.ID,
				"error", err)
			continue
		}
		out[snap.Ref.ID] = []byte(doc.Body)
	}
	s.markUp()
	return out, nil
}

// NewID uses Firestore's client-side id generator; it needs no round trip but
// still requires an authenticated user scope.
func (s *Store) NewID(_ context.Context, collection string) (string, error) {
	col, err := s.collection(collection)
	if err != nil {
		return "", err
	}
	return col.NewDoc().ID, nil
}

func (s *Store) markUp() {
	s.mu.Lock()
	s.downSince = time.Time{}
	s.mu.Unlock()
}

// wrap maps transport failures to core.ErrRemoteUnavailable and remembers them.
func (s *Store) wrap(op string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		s.mu.Lock()
		if s.downSince.IsZero() {
			s.downSince = s.now()
		}
		s.mu.Unlock()
		return fmt.Errorf("firestore %s: %w: %v", op, core.ErrRemoteUnavailable, err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("firestore %s: %w: %v", op, core.ErrNotAuthenticated, err)
	}
	return fmt.Errorf("firestore %s: %w", op, err)
}
