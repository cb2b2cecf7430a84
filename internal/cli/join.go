package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/meshcall/internal/call"
	"github.com/BioHazard786/meshcall/internal/config"
	"github.com/BioHazard786/meshcall/internal/netutil"
	"github.com/BioHazard786/meshcall/internal/roomname"
	"github.com/BioHazard786/meshcall/internal/ui"
)

var (
	flagName     string
	flagServer   string
	flagInsecure bool
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagCodec    string
	flagCamera   bool
)

var joinCmd = &cobra.Command{
	Use:     "join [room]",
	Aliases: []string{"j"},
	Short:   "Join a room, creating it if nobody is there yet",
	Long: `Join a room and call everyone in it.

Without a room name a memorable one is generated; share it with the people
you want to call.

Examples:
  meshcall join
  meshcall join plucky-otter-lagoon --name alice --camera
  meshcall join standup --server localhost:3000 --insecure
  meshcall join standup --turn turn.example.com --turn-user u --turn-pass p --relay`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := ""
		if len(args) == 1 {
			roomID = args[0]
		}
		return joinRoom(cmd, roomID)
	},
}

func joinRoom(cmd *cobra.Command, roomID string) error {
	cfg, err := config.Load(currentOptions())
	if err != nil {
		return call.NewError("load config", err)
	}

	generated := roomID == ""
	if generated {
		roomID = roomname.Generate()
	}

	fmt.Fprintln(ui.Output, ui.RoomView(roomID, cfg.ServerURL))
	fmt.Fprintln(ui.Output)
	if generated {
		ui.PrintInfo("Share the room ID with the people you want to call")
	}
	if cfg.TURNServer == "" && netutil.ShouldForceRelay() {
		ui.PrintWarning("This network may block direct connections; pass --turn if peers cannot connect")
	}

	summary, err := call.New(cfg, roomID, slog.Default()).Run(cmd.Context())
	if summary.Reason != "" {
		fmt.Fprintln(ui.Output)
		ui.RenderCallSummary(summary)
	}
	return err
}

func currentOptions() config.Options {
	return config.Options{
		Server:      flagServer,
		Insecure:    flagInsecure,
		Codec:       flagCodec,
		DisplayName: flagName,
		STUNServer:  flagSTUN,
		TURNServer:  flagTURN,
		TURNUser:    flagTURNUser,
		TURNPass:    flagTURNPass,
		ForceRelay:  flagRelay,
		StartCamera: flagCamera,
	}
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagName, "name", "n", "", "Display name shown to other participants")
	joinCmd.Flags().StringVar(&flagServer, "server", "", "Signaling server host or URL")
	joinCmd.Flags().BoolVar(&flagInsecure, "insecure", false, "Use ws:// for a bare server host")
	joinCmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	joinCmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	joinCmd.Flags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	joinCmd.Flags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	joinCmd.Flags().BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	joinCmd.Flags().StringVar(&flagCodec, "codec", "", "Signaling codec: json or msgpack")
	joinCmd.Flags().BoolVarP(&flagCamera, "camera", "c", false, "Start camera and microphone after joining")
}
