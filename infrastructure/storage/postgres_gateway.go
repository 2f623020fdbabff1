package storage

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgCreateChats = `CREATE TABLE IF NOT EXISTS chats (
	id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	chat_name VARCHAR(255) NOT NULL,
	user1_id BIGINT NOT NULL,
	user2_id BIGINT NOT NULL
)`
	pgCreateMessages = `CREATE TABLE IF NOT EXISTS chat_messages (
	id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	chat_id BIGINT NOT NULL,
	message TEXT NOT NULL
)`
	pgCreateMessagesIndex = `CREATE INDEX IF NOT EXISTS idx_chat_messages_chat ON chat_messages (chat_id, id)`
	pgSelectRoom          = `SELECT id, chat_name, user1_id, user2_id FROM chats WHERE id = $1`
	pgSelectRooms         = `SELECT id, chat_name, user1_id, user2_id FROM chats ORDER BY id`
	pgInsertRoom          = `INSERT INTO chats (chat_name, user1_id, user2_id) VALUES ($1, $2, $3) RETURNING id`
	pgInsertMessage       = `INSERT INTO chat_messages (chat_id, message) VALUES ($1, $2)`
	pgSelectHistory       = `SELECT message FROM chat_messages WHERE chat_id = $1 ORDER BY id`
	pgSelectLatestOf      = `SELECT message FROM (SELECT id, message FROM chat_messages WHERE chat_id = $1 ORDER BY id DESC LIMIT $2) AS latest ORDER BY id`
)

// pgQuerier is the part of *pgxpool.Pool the gateway uses.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OpenPostgres connects a pool and checks the server answers.
func OpenPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// PostgresGateway keeps the chats and chat_messages tables in PostgreSQL.
type PostgresGateway struct {
	db            pgQuerier
	log           *slog.Logger
	limitMessages *int
	validate      *validator.Validate
}

func NewPostgresGateway(db pgQuerier, log *slog.Logger, limitMessages *int) *PostgresGateway {
	return &PostgresGateway{
		db:            db,
		log:           log,
		limitMessages: limitMessages,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (g *PostgresGateway) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{pgCreateChats, pgCreateMessages, pgCreateMessagesIndex} {
		if _, err := g.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (g *PostgresGateway) LoadRoom(ctx context.Context, id chat.RoomID) (chat.RoomMetadata, error) {
	room, err := scanRoom(g.db.QueryRow(ctx, pgSelectRoom, int64(id)).Scan)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return chat.RoomMetadata{}, fmt.Errorf("%w: %d", errors.ErrRoomNotFound, id)
	}
	return room, err
}

func (g *PostgresGateway) AppendMessage(ctx context.Context, id chat.RoomID, text string) error {
	_, err := g.db.Exec(ctx, pgInsertMessage, int64(id), text)
	return err
}

func (g *PostgresGateway) LoadHistory(ctx context.Context, id chat.RoomID) ([]string, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if g.limitMessages != nil {
		rows, err = g.db.Query(ctx, pgSelectLatestOf, int64(id), int64(*g.limitMessages))
	} else {
		rows, err = g.db.Query(ctx, pgSelectHistory, int64(id))
	}
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (g *PostgresGateway) CreateRoom(ctx context.Context, name string, participantA, participantB uint32) (chat.RoomMetadata, error) {
	room := chat.RoomMetadata{Name: name, ParticipantA: participantA, ParticipantB: participantB}
	if err := g.validate.StructExcept(room, "ID"); err != nil {
		return chat.RoomMetadata{}, err
	}
	var id int64
	err := g.db.QueryRow(ctx, pgInsertRoom, name, int64(participantA), int64(participantB)).Scan(&id)
	if err != nil {
		return chat.RoomMetadata{}, err
	}
	room.ID = chat.RoomID(id)
	g.log.Debug("Room created", "room_id", room.ID, "name", room.Name)
	return room, nil
}

func (g *PostgresGateway) ListRooms(ctx context.Context) ([]chat.RoomMetadata, error) {
	rows, err := g.db.Query(ctx, pgSelectRooms)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []chat.RoomMetadata
	for rows.Next() {
		room, err := scanRoom(rows.Scan)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}
