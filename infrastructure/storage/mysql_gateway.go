package storage

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
)

const (
	mysqlCreateChats = `CREATE TABLE IF NOT EXISTS chats (
	Id INT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
	ChatName VARCHAR(255) NOT NULL,
	User1_Id INT UNSIGNED NOT NULL,
	User2_Id INT UNSIGNED NOT NULL
)`
	mysqlCreateMessages = `CREATE TABLE IF NOT EXISTS chat_messages (
	Id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
	Chat_Id INT UNSIGNED NOT NULL,
	Message TEXT NOT NULL,
	INDEX idx_chat_messages_chat (Chat_Id, Id)
)`
	mysqlSelectRoom     = `SELECT Id, ChatName, User1_Id, User2_Id FROM chats WHERE Id = ?`
	mysqlSelectRooms    = `SELECT Id, ChatName, User1_Id, User2_Id FROM chats ORDER BY Id`
	mysqlInsertRoom     = `INSERT INTO chats (ChatName, User1_Id, User2_Id) VALUES (?, ?, ?)`
	mysqlInsertMessage  = `INSERT INTO chat_messages (Chat_Id, Message) VALUES (?, ?)`
	mysqlSelectHistory  = `SELECT Message FROM chat_messages WHERE Chat_Id = ? ORDER BY Id`
	mysqlSelectLatestOf = `SELECT Message FROM (SELECT Id, Message FROM chat_messages WHERE Chat_Id = ? ORDER BY Id DESC LIMIT ?) AS latest ORDER BY Id`
)

type MySQLConfig struct {
	User     string
	Password string
	Host     string
	Name     string
}

// OpenMySQL opens a pool and checks the server answers.
func OpenMySQL(ctx context.Context, cfg MySQLConfig) (*sql.DB, error) {
	dbConfig := mysql.Config{
		User:                 cfg.User,
		Passwd:               cfg.Password,
		Net:                  "tcp",
		Addr:                 cfg.Host,
		DBName:               cfg.Name,
		AllowNativePasswords: true,
	}
	db, err := sql.Open("mysql", dbConfig.FormatDSN())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql %s: %w", cfg.Host, err)
	}
	return db, nil
}

// MySQLGateway reads and writes the chats and chat_messages tables.
type MySQLGateway struct {
	db            *sql.DB
	log           *slog.Logger
	limitMessages *int
	validate      *validator.Validate
}

func NewMySQLGateway(db *sql.DB, log *slog.Logger, limitMessages *int) *MySQLGateway {
	return &MySQLGateway{
		db:            db,
		log:           log,
		limitMessages: limitMessages,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
}

// EnsureSchema creates the tables when they are missing.
func (g *MySQLGateway) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{mysqlCreateChats, mysqlCreateMessages} {
		if _, err := g.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (g *MySQLGateway) LoadRoom(ctx context.Context, id chat.RoomID) (chat.RoomMetadata, error) {
	row := g.db.QueryRowContext(ctx, mysqlSelectRoom, uint32(id))
	room, err := scanRoom(row.Scan)
	if stderrors.Is(err, sql.ErrNoRows) {
		return chat.RoomMetadata{}, fmt.Errorf("%w: %d", errors.ErrRoomNotFound, id)
	}
	return room, err
}

func (g *MySQLGateway) AppendMessage(ctx context.Context, id chat.RoomID, text string) error {
	_, err := g.db.ExecContext(ctx, mysqlInsertMessage, uint32(id), text)
	return err
}

func (g *MySQLGateway) LoadHistory(ctx context.Context, id chat.RoomID) ([]string, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if g.limitMessages != nil {
		rows, err = g.db.QueryContext(ctx, mysqlSelectLatestOf, uint32(id), *g.limitMessages)
	} else {
		rows, err = g.db.QueryContext(ctx, mysqlSelectHistory, uint32(id))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []string
	for rows.Next() {
		var message string
		if err := rows.Scan(&message); err != nil {
			return nil, err
		}
		history = append(history, message)
	}
	return history, rows.Err()
}

func (g *MySQLGateway) CreateRoom(ctx context.Context, name string, participantA, participantB uint32) (chat.RoomMetadata, error) {
	room := chat.RoomMetadata{Name: name, ParticipantA: participantA, ParticipantB: participantB}
	// The id is allocated by the database
	if err := g.validate.StructExcept(room, "ID"); err != nil {
		return chat.RoomMetadata{}, err
	}
	res, err := g.db.ExecContext(ctx, mysqlInsertRoom, name, participantA, participantB)
	if err != nil {
		return chat.RoomMetadata{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return chat.RoomMetadata{}, err
	}
	room.ID = chat.RoomID(id)
	g.log.Debug("Room created", "room_id", room.ID, "name", room.Name)
	return room, nil
}

func (g *MySQLGateway) ListRooms(ctx context.Context) ([]chat.RoomMetadata, error) {
	rows, err := g.db.QueryContext(ctx, mysqlSelectRooms)
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

// scanRoom reads Id, ChatName, User1_Id, User2_Id through any Scan function.
func scanRoom(scan func(dest ...any) error) (chat.RoomMetadata, error) {
	var (
		id, a, b int64
		name     string
	)
	if err := scan(&id, &name, &a, &b); err != nil {
		return chat.RoomMetadata{}, err
	}
	return chat.RoomMetadata{
		ID:           chat.RoomID(id),
		Name:         name,
		ParticipantA: uint32(a),
		ParticipantB: uint32(b),
	}, nil
}
