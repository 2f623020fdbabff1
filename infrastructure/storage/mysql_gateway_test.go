package storage

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	"database/sql"
	"log/slog"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newMySQLGateway(t *testing.T, limit *int) (*MySQLGateway, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewMySQLGateway(db, logs.GetLoggerFromLevel(slog.LevelDebug), limit), mock
}

func TestMySQLGateway_LoadRoom(t *testing.T) {
	req := require.New(t)
	gateway, mock := newMySQLGateway(t, nil)
	mock.ExpectQuery(regexp.QuoteMeta(mysqlSelectRoom)).
		WithArgs(uint32(7)).
		WillReturnRows(sqlmock.NewRows([]string{"Id", "ChatName", "User1_Id", "User2_Id"}).
			AddRow(7, "general", 1, 2))

	room, err := gateway.LoadRoom(context.Background(), 7)

	req.NoError(err)
	req.Equal(chat.RoomMetadata{ID: 7, Name: "general", ParticipantA: 1, ParticipantB: 2}, room)
}

func TestMySQLGateway_LoadUnknownRoom(t *testing.T) {
	req := require.New(t)
	gateway, mock := newMySQLGateway(t, nil)
	mock.ExpectQuery(regexp.QuoteMeta(mysqlSelectRoom)).
		WithArgs(uint32(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := gateway.LoadRoom(context.Background(), 404)

	req.ErrorIs(err, errors.ErrRoomNotFound)
}

func TestMySQLGateway_AppendMessage(t *testing.T) {
	req := require.New(t)
	gateway, mock := newMySQLGateway(t, nil)
	mock.ExpectExec(regexp.QuoteMeta(mysqlInsertMessage)).
		WithArgs(uint32(7), "alice: hi").
		WillReturnResult(sqlmock.NewResult(1, 1))

	req.NoError(gateway.AppendMessage(context.Background(), 7, "alice: hi"))
}

func TestMySQLGateway_LoadHistory(t *testing.T) {
	req := require.New(t)
	gateway, mock := newMySQLGateway(t, nil)
	mock.ExpectQuery(regexp.QuoteMeta(mysqlSelectHistory)).
		WithArgs(uint32(7)).
		WillReturnRows(sqlmock.NewRows([]string{"Message"}).
			AddRow("alice: hi").
			AddRow("bob: hey"))

	history, err := gateway.LoadHistory(context.Background(), 7)

	req.NoError(err)
	req.Equal([]string{"alice: hi", "bob: hey"}, history)
}

func TestMySQLGateway_LoadHistoryWithLimit(t *testing.T) {
	req := require.New(t)
	gateway, mock := newMySQLGateway(t, lo.ToPtr(1))
	mock.ExpectQuery(regexp.QuoteMeta(mysqlSelectLatestOf)).
		WithArgs(uint32(7), 1).
		WillReturnRows(sqlmock.NewRows([]string{"Message"}).AddRow("bob: hey"))

	history, err := gateway.LoadHistory(context.Background(), 7)

	req.NoError(err)
	req.Equal([]string{"bob: hey"}, history)
}

func TestMySQLGateway_CreateAndListRooms(t *testing.T) {
	req := require.New(t)
	gateway, mock := newMySQLGateway(t, nil)
	mock.ExpectExec(regexp.QuoteMeta(mysqlInsertRoom)).
		WithArgs("general", uint32(1), uint32(2)).
		WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectQuery(regexp.QuoteMeta(mysqlSelectRooms)).
		WillReturnRows(sqlmock.NewRows([]string{"Id", "ChatName", "User1_Id", "User2_Id"}).
			AddRow(12, "general", 1, 2))

	room, err := gateway.CreateRoom(context.Background(), "general", 1, 2)
	req.NoError(err)
	req.Equal(chat.RoomID(12), room.ID)

	rooms, err := gateway.ListRooms(context.Background())
	req.NoError(err)
	req.Equal([]chat.RoomMetadata{room}, rooms)
}

func TestMySQLGateway_CreateRoomRejectsSameParticipants(t *testing.T) {
	req := require.New(t)
	gateway, _ := newMySQLGateway(t, nil)

	_, err := gateway.CreateRoom(context.Background(), "solo", 3, 3)

	req.Error(err)
}

func TestMySQLGateway_EnsureSchema(t *testing.T) {
	req := require.New(t)
	gateway, mock := newMySQLGateway(t, nil)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS chats")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS chat_messages")).WillReturnResult(sqlmock.NewResult(0, 0))

	req.NoError(gateway.EnsureSchema(context.Background()))
}
