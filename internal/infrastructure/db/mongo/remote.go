package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/practicedesk/console/internal/core/domain"
	"github.com/practicedesk/console/internal/core/ports"
	"github.com/practicedesk/console/internal/infrastructure/db/bsonx"
	"github.com/practicedesk/console/pkg/idx"
)

var (
	errNotConnected = errors.New("mongo remote: platform handshake not completed")
	errStreamClosed = errors.New("mongo remote: change stream closed")
)

// Presence records which console processes hold a platform session.
type Presence interface {
	Register(ctx context.Context, sessionID string) error
	Refresh(ctx context.Context, sessionID string) error
	Release(ctx context.Context, sessionID string) error
}

// Remote is the MongoDB implementation of ports.Remote. Collections live under
// a namespace prefix and snapshots are pushed through change streams, so the
// server must run as a replica set.
type Remote struct {
	cfg       Config
	namespace string
	presence  Presence
	log       zerolog.Logger

	mu       sync.Mutex
	client   *mongo.Client
	db       *mongo.Database
	identity domain.PlatformIdentity
}

// NewRemote returns an unconnected Remote. Nothing touches the network until
// SignInAnonymously.
func NewRemote(cfg Config, namespace string, presence Presence, log zerolog.Logger) *Remote {
	if cfg.Registry == nil {
		cfg.Registry = bsonx.Registry()
	}
	return &Remote{cfg: cfg, namespace: namespace, presence: presence, log: log}
}

// SignInAnonymously connects with the configured application credentials and
// grants this process an opaque session identity. Repeated calls return the
// established identity.
func (r *Remote) SignInAnonymously(ctx context.Context) (domain.PlatformIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.identity.IsZero() {
		return r.identity, nil
	}

	client, db, err := Connect(ctx, r.cfg)
	if err != nil {
		return domain.PlatformIdentity{}, err
	}
	r.client, r.db = client, db
	r.identity = domain.PlatformIdentity{ID: idx.New()}

	if r.presence != nil {
		if err := r.presence.Register(ctx, r.identity.ID); err != nil {
			r.log.Warn().Err(err).Str("platform_session", r.identity.ID).Msg("presence registration failed")
		}
	}
	return r.identity, nil
}

// Close releases the presence record and disconnects.
func (r *Remote) Close(ctx context.Context) error {
	r.mu.Lock()
	client, id := r.client, r.identity
	r.client, r.db = nil, nil
	r.mu.Unlock()

	if client == nil {
		return nil
	}
	if r.presence != nil {
		if err := r.presence.Release(ctx, id.ID); err != nil {
			r.log.Warn().Err(err).Msg("presence release failed")
		}
	}
	return client.Disconnect(ctx)
}

// Ping checks the primary and keeps the presence record alive.
func (r *Remote) Ping(ctx context.Context) error {
	r.mu.Lock()
	client, id := r.client, r.identity
	r.mu.Unlock()

	if client == nil {
		return errNotConnected
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}
	if r.presence != nil {
		if err := r.presence.Refresh(ctx, id.ID); err != nil {
			r.log.Warn().Err(err).Msg("presence refresh failed")
		}
	}
	return nil
}

// EnsureIndexes creates the indexes the console queries rely on.
func (r *Remote) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		domain.CollectionUsers: {
			{Keys: bson.D{{Key: "username", Value: 1}}},
		},
		domain.CollectionClients: {
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
		domain.CollectionReports: {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
	}
	for name, models := range indexes {
		col, err := r.collection(name)
		if err != nil {
			return err
		}
		if _, err := col.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("ensure indexes on %s: %w", name, err)
		}
	}
	return nil
}

func (r *Remote) collection(name string) (*mongo.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil, errNotConnected
	}
	if r.namespace != "" {
		name = r.namespace + "." + name
	}
	return r.db.Collection(name), nil
}

// Watch opens a change stream on the query's collection. The stream is opened
// before the first read so no write between the two is missed.
func (r *Remote) Watch(ctx context.Context, q ports.Query) (ports.SnapshotStream, error) {
	col, err := r.collection(q.Collection)
	if err != nil {
		return nil, err
	}
	cs, err := col.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", q.Collection, err)
	}
	return &stream{col: col, cs: cs, query: q, reg: r.cfg.Registry}, nil
}

// Insert upserts a fresh document so the server stamps created_at itself.
func (r *Remote) Insert(ctx context.Context, collection string, fields ports.Fields) (string, error) {
	col, err := r.collection(collection)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{}
	for k, v := range fields {
		if k == "_id" || k == "created_at" {
			continue
		}
		set[k] = v
	}

	id := idx.New()
	update := bson.M{
		"$setOnInsert": set,
		"$currentDate": bson.M{"created_at": true},
	}
	if _, err := col.UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true)); err != nil {
		return "", fmt.Errorf("insert into %s: %w", collection, err)
	}
	return id, nil
}

func (r *Remote) Update(ctx context.Context, collection, id string, fields ports.Fields) error {
	col, err := r.collection(collection)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{}
	for k, v := range fields {
		if k == "_id" || k == "created_at" {
			continue
		}
		set[k] = v
	}

	res, err := col.UpdateOne(ctx, idFilter(id), bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (r *Remote) Delete(ctx context.Context, collection, id string) error {
	col, err := r.collection(collection)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := col.DeleteOne(ctx, idFilter(id))
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

// idFilter matches our string identifiers as well as ObjectIDs of records
// provisioned by other tools.
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{id, oid}}}
	}
	return bson.M{"_id": id}
}

type stream struct {
	col   *mongo.Collection
	cs    *mongo.ChangeStream
	query ports.Query
	reg   *bsoncodec.Registry

	started bool
}

// Next returns the current collection on the first call and afterwards blocks
// for the next change event. Events already buffered in the same batch are
// folded into one refetch.
func (s *stream) Next(ctx context.Context) (ports.Snapshot, error) {
	if s.started {
		if !s.cs.Next(ctx) {
			if err := s.cs.Err(); err != nil {
				return nil, err
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, errStreamClosed
		}
		for s.cs.RemainingBatchLength() > 0 && s.cs.TryNext(ctx) {
		}
	}
	s.started = true
	return s.fetch(ctx)
}

func (s *stream) fetch(ctx context.Context) (ports.Snapshot, error) {
	opts := options.Find()
	if s.query.OrderBy != "" {
		dir := 1
		if s.query.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: s.query.OrderBy, Value: dir}})
	}

	cur, err := s.col.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.query.Collection, err)
	}
	defer cur.Close(ctx)

	var snap ports.Snapshot
	for cur.Next(ctx) {
		raw := make(bson.Raw, len(cur.Current))
		copy(raw, cur.Current)
		snap = append(snap, document{raw: raw, reg: s.reg})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.query.Collection, err)
	}
	return snap, nil
}

func (s *stream) Close(ctx context.Context) error {
	return s.cs.Close(ctx)
}

type document struct {
	raw bson.Raw
	reg *bsoncodec.Registry
}

func (d document) ID() string {
	v, err := d.raw.LookupErr("_id")
	if err != nil {
		return ""
	}
	switch v.Type {
	case bsontype.String:
		return v.StringValue()
	case bsontype.ObjectID:
		return v.ObjectID().Hex()
	default:
		return v.String()
	}
}

func (d document) Decode(v any) error {
	return bson.UnmarshalWithRegistry(d.reg, d.raw, v)
}
