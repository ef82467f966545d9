package repositories

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	roomsCollection        = "rooms"
	matchStatesCollection  = "match_states"
	leaderboardsCollection = "leaderboards"
	scoringCollection      = "scoring_configs"
	matchLocksCollection   = "match_locks"

	// A lease outlives a crashed holder by at most this long.
	matchLockLease = 30 * time.Second
	matchLockWait  = 15 * time.Second
)

// EnsureMongoIndexes creates the unique indexes the tenant database relies on.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(roomsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tournamentId", Value: 1}, {Key: "roomNumber", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("rooms_tournament_room_number"),
	})
	if err != nil {
		return fmt.Errorf("creating rooms index: %w", err)
	}
	_, err = db.Collection(matchStatesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "roomId", Value: 1}, {Key: "matchNumber", Value: 1}, {Key: "participantId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("match_states_room_match_participant"),
		},
		{
			Keys:    bson.D{{Key: "roomId", Value: 1}, {Key: "matchNumber", Value: 1}, {Key: "isActive", Value: 1}},
			Options: options.Index().SetName("match_states_active"),
		},
		{
			Keys:    bson.D{{Key: "roomId", Value: 1}, {Key: "matchNumber", Value: 1}, {Key: "rosterIndex", Value: 1}},
			Options: options.Index().SetName("match_states_roster_order"),
		},
	})
	if err != nil {
		return fmt.Errorf("creating match_states indexes: %w", err)
	}
	_, err = db.Collection(leaderboardsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tournamentId", Value: 1}, {Key: "totalPoints", Value: -1}},
		Options: options.Index().SetName("leaderboards_tournament_points"),
	})
	if err != nil {
		return fmt.Errorf("creating leaderboards index: %w", err)
	}
	return nil
}

// NewMongoSet builds the repository registry over one tenant database.
func NewMongoSet(db *mongo.Database) *Set {
	return &Set{
		Rooms:        &mongoRoomRepository{collection: db.Collection(roomsCollection)},
		MatchStates:  &mongoMatchStateRepository{collection: db.Collection(matchStatesCollection)},
		Leaderboards: &mongoLeaderboardRepository{collection: db.Collection(leaderboardsCollection)},
		Scoring:      &mongoScoringRepository{collection: db.Collection(scoringCollection)},
		Locks:        &mongoMatchLocker{collection: db.Collection(matchLocksCollection)},
	}
}

type mongoRoomRepository struct {
	collection *mongo.Collection
}

func (r *mongoRoomRepository) Create(ctx context.Context, room *models.Room) error {
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now
	if _, err := r.collection.InsertOne(ctx, room); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrRoomConflict
		}
		return fmt.Errorf("failed to insert room %s: %w", room.ID, err)
	}
	return nil
}

func (r *mongoRoomRepository) GetByID(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&room); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to load room %s: %w", id, err)
	}
	return &room, nil
}

func (r *mongoRoomRepository) UpdateStatus(ctx context.Context, id string, from, to models.RoomStatus, currentMatch int) error {
	filter := bson.M{"_id": id, "status": from}
	update := bson.M{"$set": bson.M{"status": to, "currentMatch": currentMatch, "updatedAt": time.Now().UTC()}}
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update status of room %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetByID(ctx, id); errors.Is(err, ErrRoomNotFound) {
			return ErrRoomNotFound
		}
		return ErrRoomStatusChanged
	}
	return nil
}

type mongoMatchStateRepository struct {
	collection *mongo.Collection
}

func (r *mongoMatchStateRepository) CreateBatch(ctx context.Context, states []*models.MatchState) error {
	if len(states) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(states))
	for _, s := range states {
		docs = append(docs, s)
	}
	// Ordered insert stops at the first duplicate; the unique index keeps a
	// match from being started twice.
	if _, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrMatchStateConflict
		}
		return fmt.Errorf("failed to insert %d match states: %w", len(states), err)
	}
	return nil
}

func (r *mongoMatchStateRepository) GetByID(ctx context.Context, id string) (*models.MatchState, error) {
	var s models.MatchState
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMatchStateNotFound
		}
		return nil, fmt.Errorf("failed to load match state %s: %w", id, err)
	}
	return &s, nil
}

func (r *mongoMatchStateRepository) ListByRoomMatch(ctx context.Context, roomID string, matchNumber int) ([]*models.MatchState, error) {
	opts := options.Find().SetSort(bson.D{{Key: "rosterIndex", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"roomId": roomID, "matchNumber": matchNumber}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query match states of room %s match %d: %w", roomID, matchNumber, err)
	}
	defer cursor.Close(ctx)

	states := make([]*models.MatchState, 0)
	if err := cursor.All(ctx, &states); err != nil {
		return nil, fmt.Errorf("failed to decode match states of room %s match %d: %w", roomID, matchNumber, err)
	}
	return states, nil
}

func (r *mongoMatchStateRepository) CountActive(ctx context.Context, roomID string, matchNumber int) (int, error) {
	filter := bson.M{"roomId": roomID, "matchNumber": matchNumber, "isActive": true, "isDisqualified": false}
	n, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count active states of room %s match %d: %w", roomID, matchNumber, err)
	}
	return int(n), nil
}

func (r *mongoMatchStateRepository) Update(ctx context.Context, s *models.MatchState) error {
	next := s.Clone()
	next.Version = s.Version + 1
	next.UpdatedAt = time.Now().UTC()

	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": s.ID, "version": s.Version}, next)
	if err != nil {
		return fmt.Errorf("failed to update match state %s: %w", s.ID, err)
	}
	if res.MatchedCount == 0 {
		n, countErr := r.collection.CountDocuments(ctx, bson.M{"_id": s.ID})
		if countErr == nil && n == 0 {
			return ErrMatchStateNotFound
		}
		return ErrVersionConflict
	}
	s.Version = next.Version
	s.UpdatedAt = next.UpdatedAt
	return nil
}

type mongoLeaderboardRepository struct {
	collection *mongo.Collection
}

func (r *mongoLeaderboardRepository) Get(ctx context.Context, tournamentID, participantID string) (*models.Leaderboard, error) {
	var b models.Leaderboard
	err := r.collection.FindOne(ctx, bson.M{"_id": models.LeaderboardID(tournamentID, participantID)}).Decode(&b)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrLeaderboardNotFound
		}
		return nil, fmt.Errorf("failed to load leaderboard %s/%s: %w", tournamentID, participantID, err)
	}
	return &b, nil
}

func (r *mongoLeaderboardRepository) Save(ctx context.Context, b *models.Leaderboard) error {
	next := b.Clone()
	next.ID = models.LeaderboardID(b.TournamentID, b.ParticipantID)
	next.Version = b.Version + 1
	next.UpdatedAt = time.Now().UTC()

	if b.Version == 0 {
		if _, err := r.collection.InsertOne(ctx, next); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrVersionConflict
			}
			return fmt.Errorf("failed to insert leaderboard %s: %w", next.ID, err)
		}
	} else {
		res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": next.ID, "version": b.Version}, next)
		if err != nil {
			return fmt.Errorf("failed to update leaderboard %s: %w", next.ID, err)
		}
		if res.MatchedCount == 0 {
			return ErrVersionConflict
		}
	}
	b.ID = next.ID
	b.Version = next.Version
	b.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *mongoLeaderboardRepository) ListByTournament(ctx context.Context, tournamentID string) ([]*models.Leaderboard, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "totalPoints", Value: -1},
		{Key: "totalKills", Value: -1},
		{Key: "wins", Value: -1},
		{Key: "participantId", Value: 1},
	})
	cursor, err := r.collection.Find(ctx, bson.M{"tournamentId": tournamentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboards of tournament %s: %w", tournamentID, err)
	}
	defer cursor.Close(ctx)

	boards := make([]*models.Leaderboard, 0)
	if err := cursor.All(ctx, &boards); err != nil {
		return nil, fmt.Errorf("failed to decode leaderboards of tournament %s: %w", tournamentID, err)
	}
	return boards, nil
}

type mongoScoringRepository struct {
	collection *mongo.Collection
}

type scoringDocument struct {
	TournamentID string               `bson:"_id"`
	Config       models.ScoringConfig `bson:"config"`
	UpdatedAt    time.Time            `bson:"updatedAt"`
}

func (r *mongoScoringRepository) GetForTournament(ctx context.Context, tournamentID string) (*models.ScoringConfig, error) {
	var doc scoringDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": tournamentID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrScoringNotFound
		}
		return nil, fmt.Errorf("failed to load scoring config of tournament %s: %w", tournamentID, err)
	}
	return &doc.Config, nil
}

func (r *mongoScoringRepository) SetForTournament(ctx context.Context, tournamentID string, cfg models.ScoringConfig) error {
	doc := scoringDocument{TournamentID: tournamentID, Config: cfg, UpdatedAt: time.Now().UTC()}
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": tournamentID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store scoring config of tournament %s: %w", tournamentID, err)
	}
	return nil
}

// mongoMatchLocker leases one document per key. The upsert only matches an
// expired lease, so a live holder turns it into a duplicate key error.
type mongoMatchLocker struct {
	collection *mongo.Collection
}

func (l *mongoMatchLocker) Lock(ctx context.Context, key string) (func(), error) {
	owner := uuid.NewString()
	acquire := func() error {
		now := time.Now().UTC()
		_, err := l.collection.UpdateOne(ctx,
			bson.M{"_id": key, "lockedUntil": bson.M{"$lt": now}},
			bson.M{"$set": bson.M{"owner": owner, "lockedUntil": now.Add(matchLockLease)}},
			options.Update().SetUpsert(true),
		)
		if mongo.IsDuplicateKeyError(err) {
			return ErrMatchLockTimeout
		}
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to lease lock %s: %w", key, err))
		}
		return nil
	}

	wait := backoff.NewExponentialBackOff()
	wait.InitialInterval = 10 * time.Millisecond
	wait.MaxInterval = 250 * time.Millisecond
	wait.MaxElapsedTime = matchLockWait
	if err := backoff.Retry(acquire, backoff.WithContext(wait, ctx)); err != nil {
		if errors.Is(err, ErrMatchLockTimeout) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s", ErrMatchLockTimeout, key)
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), lockReleaseTimeout)
			defer cancel()
			// Failure leaves the lease to expire on its own.
			_, _ = l.collection.DeleteOne(releaseCtx, bson.M{"_id": key, "owner": owner})
		})
	}, nil
}
