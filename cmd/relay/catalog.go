package main

import (
	"chat-relay/domain/chat"
	"chat-relay/internal"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

func runRooms(config internal.Config, logger *slog.Logger) (int, error) {
	ctx := context.Background()
	st, err := openStore(ctx, config, logger, true)
	if err != nil {
		return exitRuntime, err
	}
	defer st.close()

	rooms, err := st.ListRooms(ctx)
	if err != nil {
		return exitRuntime, err
	}
	renderRooms(os.Stdout, rooms)
	return exitOK, nil
}

func runCreateRoom(config internal.Config, logger *slog.Logger, args []string) (int, error) {
	flags := flag.NewFlagSet("create-room", flag.ContinueOnError)
	name := flags.String("name", "", "Room name")
	participantA := flags.Uint("a", 0, "First participant id")
	participantB := flags.Uint("b", 0, "Second participant id")
	if err := flags.Parse(args); err != nil {
		return exitConfig, err
	}

	ctx := context.Background()
	st, err := openStore(ctx, config, logger, false)
	if err != nil {
		return exitRuntime, err
	}
	defer st.close()

	room, err := st.CreateRoom(ctx, *name, uint32(*participantA), uint32(*participantB))
	if err != nil {
		return exitRuntime, fmt.Errorf("create room: %w", err)
	}
	renderRooms(os.Stdout, []chat.RoomMetadata{room})
	return exitOK, nil
}

func renderRooms(w io.Writer, rooms []chat.RoomMetadata) {
	table := newTable(w, []string{"Id", "Name", "Participant A", "Participant B"})
	table.AppendBulk(lo.Map(rooms, func(r chat.RoomMetadata, _ int) []string {
		return []string{
			strconv.FormatUint(uint64(r.ID), 10),
			r.Name,
			strconv.FormatUint(uint64(r.ParticipantA), 10),
			strconv.FormatUint(uint64(r.ParticipantB), 10),
		}
	}))
	table.Render()
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}
