package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/marymwortman-lang/PureConnect/internal/call"
	"github.com/marymwortman-lang/PureConnect/internal/config"
	"github.com/marymwortman-lang/PureConnect/internal/discovery"
	"github.com/marymwortman-lang/PureConnect/internal/dns"
	"github.com/marymwortman-lang/PureConnect/internal/media"
	"github.com/marymwortman-lang/PureConnect/internal/names"
	"github.com/marymwortman-lang/PureConnect/internal/netutil"
	"github.com/marymwortman-lang/PureConnect/internal/peerlink"
	"github.com/marymwortman-lang/PureConnect/internal/signaling"
	"github.com/marymwortman-lang/PureConnect/internal/ui"
)

const joinTimeout = 30 * time.Second

var (
	flagName      string
	flagServer    string
	flagSTUN      string
	flagCodec     string
	flagPublicURL string
	flagDiscover  bool
	flagVideoFile string
	flagAudioFile string
	flagNoAudio   bool
	flagNoVideo   bool
)

var joinCmd = &cobra.Command{
	Use:     "join [room]",
	Aliases: []string{"j"},
	Short:   "Join a room and start a call",
	Long: `Join a room on the relay and call whoever else is in it. Without a room
name a new memorable one is made up for you to share.

Examples:
  pureconnect join
  pureconnect join brave-otter-lagoon --name alice
  pureconnect join --discover --video-file clip.ivf --audio-file voice.ogg`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room := ""
		if len(args) == 1 {
			room = args[0]
		}
		return joinRoom(cmd.Context(), room)
	},
}

func joinRoom(ctx context.Context, room string) error {
	serverURL := flagServer
	if flagDiscover {
		relay, err := discoverRelay(ctx)
		if err != nil {
			return err
		}
		serverURL = relay.URL
	}

	cfg, err := config.Load(config.Options{
		ServerURL:  serverURL,
		STUNServer: flagSTUN,
		Codec:      flagCodec,
		PublicURL:  flagPublicURL,
	})
	if err != nil {
		return call.NewError("load config", err)
	}

	if ifaces, err := netutil.Interfaces(); err == nil && netutil.BehindTunnel(ifaces) {
		ui.PrintWarning("VPN or CGNAT detected, a direct connection to your peer may fail")
	}

	if room == "" {
		room = names.RoomName()
	}

	session, err := newSession(cfg)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go session.Run(runCtx)

	sp := ui.NewConnectionSpinner(fmt.Sprintf("Joining %s...", room))
	sp.Start()
	joinCtx, cancelJoin := context.WithTimeout(ctx, joinTimeout)
	err = session.Join(joinCtx, room, flagName)
	cancelJoin()
	if err != nil {
		sp.Error("Could not join " + room)
		return err
	}
	sp.Stop()

	snap := session.Snapshot()
	link := cfg.GetRoomLink(snap.Room)
	fmt.Println(ui.RoomLinkView(snap.Room, link))

	summary, err := ui.RunCall(session, snap, link)
	session.HangUp()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(ui.CallSummaryView(summary))
	return nil
}

func discoverRelay(ctx context.Context) (discovery.Relay, error) {
	sp := ui.NewConnectionSpinner("Looking for a relay on the local network...")
	sp.Start()
	relay, err := discovery.Find(ctx, nil, discovery.DefaultBrowseTimeout)
	if err != nil {
		sp.Error("No relay found")
		return discovery.Relay{}, err
	}
	sp.Success(fmt.Sprintf("Found %s at %s", relay.Instance, relay.URL))
	return relay, nil
}

func newSession(cfg *config.Config) (*call.Session, error) {
	logger := slog.Default()

	links, err := peerlink.NewFactory(peerlink.Config{
		STUNServers: cfg.GetSTUNServers(),
		Logger:      logger,
	})
	if err != nil {
		return nil, call.NewError("create peer link factory", err)
	}

	resolver := dns.NewResolver()
	dialer := call.DialerFunc(func(ctx context.Context) (call.Signaler, error) {
		c, err := signaling.Dial(ctx, cfg.ServerURL, signaling.Options{
			Codec:    cfg.Codec,
			Resolver: resolver,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	})

	return call.NewSession(call.Config{
		Media: media.NewSource(media.Options{
			AudioFile: flagAudioFile,
			VideoFile: flagVideoFile,
			NoAudio:   flagNoAudio,
			NoVideo:   flagNoVideo,
			Logger:    logger,
		}),
		PeerLinks: links,
		Dialer:    dialer,
		Logger:    logger,
	}), nil
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagName, "name", "n", "", "Display name (default Guest-NNN)")
	joinCmd.Flags().StringVarP(&flagServer, "server", "s", "", "Relay websocket URL")
	joinCmd.Flags().StringVar(&flagSTUN, "stun", "", `STUN server, or "none"`)
	joinCmd.Flags().StringVarP(&flagCodec, "codec", "c", "", "Signaling encoding: json or msgpack")
	joinCmd.Flags().StringVar(&flagPublicURL, "public-url", "", "Web app address used for room links")
	joinCmd.Flags().BoolVarP(&flagDiscover, "discover", "d", false, "Find a relay on the local network")
	joinCmd.Flags().StringVar(&flagVideoFile, "video-file", "", "Send video from an IVF/VP8 file")
	joinCmd.Flags().StringVar(&flagAudioFile, "audio-file", "", "Send audio from an Ogg/Opus file")
	joinCmd.Flags().BoolVar(&flagNoAudio, "no-audio", false, "Do not send audio")
	joinCmd.Flags().BoolVar(&flagNoVideo, "no-video", false, "Do not send video")

	joinCmd.MarkFlagsMutuallyExclusive("server", "discover")
}
