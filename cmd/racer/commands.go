package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/velotype/racer/internal/api"
	"github.com/velotype/racer/internal/session"
	"github.com/velotype/racer/internal/words"
)

func newCreateCmd(cfg *config) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a room and wait for players",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.nickname == "" {
				return fmt.Errorf("a nickname is required (--nickname or RACER_NICKNAME)")
			}
			if text == "" {
				text = words.Generate(cfg.wordCount)
			}

			client := api.NewClient(cfg.serverURL)
			room, err := client.CreateRoom(cmd.Context(), api.CreateRoomRequest{
				Nickname: cfg.nickname,
				Text:     text,
			})
			if err != nil {
				return err
			}

			store, err := buildStore(cfg)
			if err != nil {
				return err
			}
			if room.CreatedBy != nil {
				if err := store.Set(session.KeyPlayerID, room.CreatedBy.ID); err != nil {
					return err
				}
			}

			fmt.Printf("Room created. Share this code: %s\n", room.Code)
			return runSession(cmd, cfg, room.Code)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "custom passage (default: generated)")
	return cmd
}

func newJoinCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "join <room-code>",
		Short: "Join a room by its code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.nickname == "" {
				return fmt.Errorf("a nickname is required (--nickname or RACER_NICKNAME)")
			}
			return runSession(cmd, cfg, strings.ToUpper(args[0]))
		},
	}
}

func newRoomsCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List open rooms",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			rooms, err := api.NewClient(cfg.serverURL).GetRooms(cmd.Context())
			if err != nil {
				return err
			}
			if len(rooms) == 0 {
				fmt.Println("No open rooms.")
				return nil
			}
			for _, r := range rooms {
				fmt.Printf("%s  %-12s %d/%d players\n", r.Code, r.GameState, len(r.Players), r.MaxPlayers)
			}
			return nil
		},
	}
}

func newSoloCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "solo",
		Short: "Practice alone, no server needed",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolo(cmd, cfg)
		},
	}
}
