package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warptalk/internal/call"
	"github.com/BioHazard786/Warptalk/internal/callerr"
	"github.com/BioHazard786/Warptalk/internal/config"
	"github.com/BioHazard786/Warptalk/internal/logging"
	"github.com/BioHazard786/Warptalk/internal/negotiation"
	"github.com/BioHazard786/Warptalk/internal/transcript"
	"github.com/BioHazard786/Warptalk/internal/ui"
)

const (
	roomCreateTimeout = 10 * time.Second
	typedWordDelay    = 40 * time.Millisecond
)

var (
	flagServer   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagLanguage string
)

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c"},
	Short:   "Create a room and wait for the other side",
	Long: `Create a new room and print its id. The call starts when someone joins.

Lines you type are transcribed as your speech and shared with the other side.

Examples:
  warptalk create
  warptalk create --server ws://localhost:8080 --lang en-US`,
	PreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(slog.LevelError)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCallConfig()
		if err != nil {
			return err
		}
		return runCall(cmd.Context(), cfg, "")
	},
}

var joinCmd = &cobra.Command{
	Use:     "join <room-id>",
	Aliases: []string{"j"},
	Short:   "Join an existing room",
	Long: `Join the room with the given id and call the participant waiting there.

Examples:
  warptalk join ab12cd34
  warptalk join ab12cd34 --relay --turn turn:turn.example.com:3478`,
	Args: cobra.ExactArgs(1),
	PreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(slog.LevelError)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCallConfig()
		if err != nil {
			return err
		}
		return runCall(cmd.Context(), cfg, args[0])
	},
}

func loadCallConfig() (*config.Config, error) {
	return LoadConfig(config.Options{
		Server:     flagServer,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
		Language:   flagLanguage,
	})
}

func runCall(parent context.Context, cfg *config.Config, roomID string) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if roomID != "" {
		if err := probeRoom(ctx, cfg, roomID); err != nil {
			return err
		}
	}

	conn, err := NewConnectionContext(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	links, err := newLinkFactory(cfg)
	if err != nil {
		return err
	}

	speechIn, speechOut := io.Pipe()
	defer speechOut.Close()

	session := call.NewSession(call.Config{
		Client:   conn.Client,
		Events:   conn.Handler.Events(),
		Media:    &negotiation.SampleCapture{},
		Links:    links,
		Speech:   transcript.NewLineSource(speechIn, typedWordDelay),
		Language: cfg.Language,
	})

	runDone := make(chan error, 1)
	go func() { runDone <- session.Run(ctx) }()

	if roomID == "" {
		if err := createRoom(session, cfg); err != nil {
			return err
		}
	} else if err := session.Join(roomID); err != nil {
		return err
	}

	started := time.Now()
	if err := ui.RunCall(session, speechOut); err != nil {
		slog.Error("call view failed", "err", err)
	}

	room := session.RoomID()
	if err := session.Leave(); err != nil {
		slog.Debug("leave room", "err", err)
	}
	entries := session.Transcript()
	cancel()
	<-runDone

	fmt.Println()
	ui.RenderCallSummary(ui.CallSummary{
		RoomID:   room,
		Duration: time.Since(started),
		Entries:  entries,
	})
	return nil
}

// createRoom asks for a room and shows its id before the call view takes
// over the terminal. The session joins the room by itself.
func createRoom(session *call.Session, cfg *config.Config) error {
	if err := session.Create(); err != nil {
		return err
	}

	stopSpinner := ui.RunWaitingSpinner("Creating room...")
	defer stopSpinner()

	timeout := time.After(roomCreateTimeout)
	for {
		select {
		case u := <-session.Updates():
			switch u.Kind {
			case call.UpdateRoomCreated:
				stopSpinner()
				ui.RenderRoomInfo(u.RoomID, cfg.GetRoomURL(u.RoomID))
				return nil
			case call.UpdateError:
				return u.Err
			}
		case <-timeout:
			return callerr.Wrap("create room", callerr.ErrSignaling, "timed out")
		}
	}
}

func addCallFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagServer, "server", "d", "", "Signaling server host or ws:// URL")
	cmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	cmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	cmd.Flags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	cmd.Flags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	cmd.Flags().BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	cmd.Flags().StringVarP(&flagLanguage, "lang", "l", "", "Recognition language (default ja-JP)")
}

func init() {
	rootCmd.AddCommand(createCmd, joinCmd)
	addCallFlags(createCmd)
	addCallFlags(joinCmd)
}
