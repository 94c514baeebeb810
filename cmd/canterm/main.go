package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/canterm/internal/bus"
	"github.com/danmuck/canterm/internal/canmsg"
	"github.com/danmuck/canterm/internal/canwire"
	"github.com/danmuck/canterm/internal/hexio"
	"github.com/danmuck/canterm/internal/logging"
)

const defaultConfigPath = "canterm.toml"

// ErrNavigateExit signals caller-intent to leave the interactive client.
var ErrNavigateExit = errors.New("navigate exit")

// App hosts interactive state, the bus attachment and persisted settings.
type App struct {
	reader  *bufio.Reader
	cfgPath string
	cfg     clientConfigFile
	busKind string
	link    bus.Bus
	dialer  *bus.SSHDialer
}

func main() {
	var cfgPath string
	var busKind string
	flag.StringVar(&cfgPath, "config", defaultConfigPath, "path to canterm TOML config")
	flag.StringVar(&busKind, "bus", "tcp", "bus transport: tcp or loop")
	flag.Parse()

	logging.ConfigureRuntime()
	app := NewApp(cfgPath, busKind)
	if err := app.Run(); err != nil {
		log.Error().Err(err).Msg("canterm_exit")
		os.Exit(1)
	}
}

func NewApp(cfgPath string, busKind string) *App {
	return &App{
		reader:  bufio.NewReader(os.Stdin),
		cfgPath: cfgPath,
		busKind: strings.TrimSpace(strings.ToLower(busKind)),
	}
}

// Run executes the main interactive menu loop. Errors from individual
// actions are reported and the loop returns to the prompt; only navigation
// or input-source failure ends the session.
func (a *App) Run() error {
	cfg, err := loadClientConfig(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if a.busKind != "tcp" && a.busKind != "loop" {
		return fmt.Errorf("invalid bus %q (expected tcp or loop)", a.busKind)
	}
	if err := a.attach(); err != nil {
		log.Warn().Err(err).Msg("bus_attach_failed")
		fmt.Println("Bus is not attached yet; use the reconnect option once canbusd is reachable.")
	}
	defer a.detach()

	a.printGreeting()
	for {
		a.drainReceived()
		a.printMenu()
		choice, err := a.promptLine("Choose")
		if err != nil {
			return a.exitClient()
		}
		a.clearIfEnabled()
		switch strings.TrimSpace(choice) {
		case "1":
			if err := a.sendMessage(); err != nil {
				log.Error().Err(err).Msg("send_failed")
			}
		case "2":
			a.showReceived()
		case "3":
			if err := a.reattach(); err != nil {
				log.Error().Err(err).Msg("reconnect_failed")
			}
		case "4":
			if err := a.runConfigMenu(); err != nil {
				if errors.Is(err, ErrNavigateExit) {
					return a.exitClient()
				}
				log.Error().Err(err).Msg("config_menu_failed")
			}
		case "5", "q", "quit", "exit":
			return a.exitClient()
		default:
			fmt.Println("Unknown option.")
		}
	}
}

func (a *App) exitClient() error {
	if err := saveClientConfig(a.cfgPath, a.cfg); err != nil {
		log.Warn().Err(err).Msg("save_on_exit_failed")
	}
	a.detach()
	log.Info().Msg("canterm exiting")
	return nil
}

func (a *App) attach() error {
	switch a.busKind {
	case "loop":
		a.link = bus.NewLoopback(a.cfg.QueueDepth)
		return nil
	default:
		if a.cfg.SSH.Enabled {
			a.dialer = &bus.SSHDialer{
				Host:                        a.cfg.SSH.Host,
				Port:                        a.cfg.SSH.Port,
				User:                        a.cfg.SSH.User,
				KeyPath:                     a.cfg.SSH.KeyPath,
				KnownHostsPath:              a.cfg.SSH.KnownHostsPath,
				InsecureSkipHostKeyChecking: a.cfg.SSH.InsecureSkipHostKeyChecking,
				Timeout:                     5 * time.Second,
			}
			link, err := bus.DialTCPVia(a.dialer, a.cfg.BusAddr, a.cfg.QueueDepth)
			if err != nil {
				return err
			}
			a.link = link
			return nil
		}
		link, err := bus.DialTCP(a.cfg.BusAddr, a.cfg.QueueDepth)
		if err != nil {
			return err
		}
		a.link = link
		return nil
	}
}

func (a *App) detach() {
	if a.link != nil {
		_ = a.link.Close()
		a.link = nil
	}
	if a.dialer != nil {
		_ = a.dialer.Close()
		a.dialer = nil
	}
}

func (a *App) reattach() error {
	a.detach()
	if err := a.attach(); err != nil {
		return err
	}
	fmt.Printf("Bus attached (%s, addr=%s).\n", a.busKind, a.cfg.BusAddr)
	return nil
}

// sendMessage runs one full transfer: read a hex line, packetize, transmit
// frame by frame, and report the outcome. A transmit rejection aborts the
// remaining frames of this message only; the loop then returns to the menu.
func (a *App) sendMessage() error {
	if a.link == nil {
		return errors.New("bus not attached")
	}
	fmt.Println()
	fmt.Println("Enter the data to transmit through the CAN channel:")
	line, err := hexio.ReadHexLine(a.reader)
	if err != nil {
		return err
	}
	msg, err := hexio.Decode(line)
	if err != nil {
		return err
	}

	frames, err := canmsg.Packetize(a.cfg.FrameID, msg)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Data transmitted as CAN message:")
	fmt.Println(hexio.Format(msg))

	report, sendErr := canmsg.SendMessage(a.link, frames)
	switch report.Outcome {
	case canmsg.OutcomeNothingSent:
		fmt.Println("Unable to send data via CAN bus.")
	case canmsg.OutcomePartiallySent:
		fmt.Printf("Some transmission error(s) were detected: %d of %d frames sent.\n",
			report.Sent, report.Attempted)
	default:
		fmt.Printf("All %d frame(s) sent. Observe the data received on the bus;\n", report.Sent)
		fmt.Println("it should match the data entered on this terminal.")
	}
	if sendErr != nil {
		log.Warn().Err(sendErr).Str("outcome", report.Outcome).Msg("transmit_incomplete")
	}
	return nil
}

// drainReceived renders any frames that arrived since the last iteration.
func (a *App) drainReceived() {
	if a.link == nil {
		return
	}
	for {
		f, ok := a.link.Poll()
		if !ok {
			return
		}
		payload, err := canmsg.Reassemble(f)
		if err != nil {
			log.Warn().Err(err).Uint32("id", f.ID).Msg("malformed_frame_dropped")
			continue
		}
		fmt.Println()
		fmt.Printf("Data received as CAN message (id=0x%X):\n", f.ID)
		fmt.Println(hexio.Format(payload))
	}
}

func (a *App) showReceived() {
	if a.link == nil {
		fmt.Println("Bus not attached.")
		return
	}
	f, ok := a.link.Poll()
	if !ok {
		fmt.Println("No pending frames.")
		return
	}
	for {
		payload, err := canmsg.Reassemble(f)
		if err != nil {
			log.Warn().Err(err).Uint32("id", f.ID).Msg("malformed_frame_dropped")
		} else {
			fmt.Printf("id=0x%X len=%d\n%s\n", f.ID, f.Len, hexio.Format(payload))
		}
		f, ok = a.link.Poll()
		if !ok {
			return
		}
	}
}

func (a *App) runConfigMenu() error {
	for {
		fmt.Println()
		fmt.Println("Config Menu")
		fmt.Printf("  bus_addr:   %s\n", a.cfg.BusAddr)
		fmt.Printf("  frame_id:   0x%X\n", a.cfg.FrameID)
		fmt.Printf("  clear_screen_after_command: %v\n", a.cfg.ClearScreenAfterCommand)
		fmt.Println("  1) Set bus addr")
		fmt.Println("  2) Set frame id")
		fmt.Println("  3) Toggle clear-screen")
		fmt.Println("  4) Save config")
		fmt.Println("  5) Back")
		choice, err := a.promptLine("Choose")
		if err != nil {
			return ErrNavigateExit
		}
		a.clearIfEnabled()
		switch strings.TrimSpace(choice) {
		case "1":
			addr, err := a.promptLine("Bus addr (host:port)")
			if err != nil {
				return ErrNavigateExit
			}
			addr = strings.TrimSpace(addr)
			if addr == "" {
				fmt.Println("Addr is required.")
				continue
			}
			a.cfg.BusAddr = addr
		case "2":
			raw, err := a.promptLine("Frame id (decimal or 0x hex)")
			if err != nil {
				return ErrNavigateExit
			}
			id, err := parseFrameID(raw)
			if err != nil {
				fmt.Printf("Invalid frame id: %v\n", err)
				continue
			}
			a.cfg.FrameID = id
		case "3":
			a.cfg.ClearScreenAfterCommand = !a.cfg.ClearScreenAfterCommand
			log.Info().Bool("clear_screen_after_command", a.cfg.ClearScreenAfterCommand).Msg("config_updated")
		case "4":
			if err := saveClientConfig(a.cfgPath, a.cfg); err != nil {
				log.Error().Err(err).Msg("save_failed")
			} else {
				log.Info().Str("path", a.cfgPath).Msg("config_saved")
			}
		case "5":
			return nil
		default:
			fmt.Println("Unknown option.")
		}
	}
}

func parseFrameID(raw string) (uint32, error) {
	v := strings.TrimSpace(strings.ToLower(raw))
	base := 10
	if strings.HasPrefix(v, "0x") {
		v = strings.TrimPrefix(v, "0x")
		base = 16
	}
	id, err := strconv.ParseUint(v, base, 32)
	if err != nil {
		return 0, err
	}
	if uint32(id) > canwire.MaxExtendedID {
		return 0, fmt.Errorf("id 0x%X exceeds 29-bit range", id)
	}
	return uint32(id), nil
}

func (a *App) printGreeting() {
	fmt.Println("******************************************************************************")
	fmt.Println("*********************** canterm CAN terminal bridge **************************")
	fmt.Println("******************************************************************************")
	fmt.Println("Read hex data from this terminal and transmit it as CAN messages;")
	fmt.Println("receive CAN messages from the bus and render them here.")
	fmt.Println("------------------------------------------------------------------------------")
}

func (a *App) printMenu() {
	fmt.Println()
	fmt.Printf("canterm (bus=%s addr=%s frame_id=0x%X)\n", a.busKind, a.cfg.BusAddr, a.cfg.FrameID)
	fmt.Println("  1) Send data")
	fmt.Println("  2) Show received frames")
	fmt.Println("  3) Reconnect bus")
	fmt.Println("  4) Config menu")
	fmt.Println("  5) Exit")
}

func (a *App) promptLine(label string) (string, error) {
	fmt.Printf("%s: ", label)
	line, err := a.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *App) clearIfEnabled() {
	if a.cfg.ClearScreenAfterCommand {
		fmt.Print("\033[2J\033[H")
	}
}
