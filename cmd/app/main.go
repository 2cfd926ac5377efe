package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"

	"netlab/chat"
	"netlab/clock"
	"netlab/domain/event"
	"netlab/echo"
	"netlab/hostinfo"
	"netlab/repositories"
	"netlab/sink"
	"netlab/socket"
	"netlab/transcript"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, drives the interactive menu, and
// centralizes error reporting so every defer (database close, server
// shutdown) executes before the process exits.
func run() error {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	if dir := filepath.Dir(config.EventLogPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("log directory: %w", err)
		}
	}

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("event store opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing event store...")
		_ = db.Close()
	}()

	settings := socket.NewSettings()
	fileSink := sink.NewFileSink(config.EventLogPath)
	repository := repositories.NewEventRepository(db, log)
	events := sink.NewFanout(log, fileSink, sink.NewStoreSink(repository, log))
	transcriptLog := transcript.New(config.TranscriptPath)

	a := &app{
		config:     config,
		log:        log,
		settings:   settings,
		events:     events,
		fileSink:   fileSink,
		repository: repository,
		chatServer: chat.NewServer(settings, transcriptLog, events, log),
		echoServer: echo.NewServer(settings, events, log),
		stdin:      bufio.NewScanner(os.Stdin),
	}
	defer a.shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		a.shutdown()
		os.Exit(130)
	}()

	a.mainMenu()
	return nil
}

type app struct {
	config     Config
	log        *slog.Logger
	settings   *socket.Settings
	events     sink.EventSink
	fileSink   *sink.FileSink
	repository repositories.EventRepository
	chatServer *chat.Server
	echoServer *echo.Server
	stdin      *bufio.Scanner

	// clockOffset holds the last measured SNTP offset; event timestamps
	// use the synchronized clock once a time check succeeded.
	clockOffset time.Duration
}

func (a *app) now() time.Time {
	return time.Now().Add(a.clockOffset)
}

func (a *app) record(module string, severity event.Severity, message string) {
	_ = a.events.Record(event.New(module, severity, message, a.now()))
}

func (a *app) shutdown() {
	a.chatServer.Stop()
	a.echoServer.Stop()
}

func (a *app) mainMenu() {
	for {
		color.Cyan.Println("\nIntegrated Network Programming Project")
		fmt.Println("1. Machine Information")
		fmt.Println("2. Echo Test")
		fmt.Println("3. SNTP Time Check")
		fmt.Println("4. Socket Settings")
		fmt.Println("5. Chat")
		fmt.Println("6. Error Management")
		fmt.Println("0. Exit")
		switch a.prompt("Select an option") {
		case "1":
			a.showMachineInfo()
		case "2":
			a.echoMenu()
		case "3":
			a.showSNTPTime()
		case "4":
			a.configureSocketSettings()
		case "5":
			a.chatMenu()
		case "6":
			a.errorMenu()
		case "0":
			return
		default:
			color.Yellow.Println("Invalid option. Please select again.")
		}
	}
}

// ------------------------------------------------------------------
// Machine information

func (a *app) showMachineInfo() {
	info, err := hostinfo.Collect()
	if err != nil {
		color.Red.Printf("Failed to collect machine info: %v\n", err)
		a.record("machine-info", event.SeverityError, "failed to collect machine info: "+err.Error())
		return
	}
	fmt.Printf("Host name: %s\n", info.Hostname)
	fmt.Printf("IP address: %s\n", info.PrimaryIP)
	fmt.Println("\nNetwork Interfaces:")
	for _, iface := range info.Interfaces {
		fmt.Printf("  %-28s %s (%s)\n", iface.Label+":", iface.Address, iface.Name)
	}
	a.record("machine-info", event.SeverityInfo, "displayed machine network information")
}

// ------------------------------------------------------------------
// SNTP

func (a *app) showSNTPTime() {
	result, err := clock.Check(a.config.NTPHost)
	if err != nil {
		color.Red.Printf("Time check failed: %v\n", err)
		a.record("sntp", event.SeverityError, "time check failed: "+err.Error())
		return
	}
	fmt.Printf("Server time : %s\n", result.Server.Format(time.RFC1123))
	fmt.Printf("Local time  : %s\n", result.Local.Format(time.RFC1123))
	fmt.Printf("Offset      : %s\n", result.Offset)
	a.clockOffset = result.Offset
	a.record("sntp", event.SeverityInfo, "fetched SNTP time, offset "+result.Offset.String())
}

// ------------------------------------------------------------------
// Socket settings

func (a *app) showSocketSettings() {
	cfg := a.settings.Get()
	timeout := "none"
	if cfg.Timeout != nil {
		timeout = cfg.Timeout.String()
	}
	fmt.Println("\nSocket Settings:")
	fmt.Printf("  Timeout        : %s\n", timeout)
	fmt.Printf("  Receive buffer : %d\n", cfg.RecvBuffer)
	fmt.Printf("  Send buffer    : %d\n", cfg.SendBuffer)
	fmt.Printf("  Blocking       : %t\n", cfg.Blocking)
}

func (a *app) configureSocketSettings() {
	a.showSocketSettings()
	cfg := a.settings.Get()

	currentTimeout := 0.0
	if cfg.Timeout != nil {
		currentTimeout = cfg.Timeout.Seconds()
	}
	seconds := a.promptFloat("Timeout seconds (0 disables)", currentTimeout)
	patch := socket.Patch{
		Timeout:    lo.ToPtr(time.Duration(seconds * float64(time.Second))),
		RecvBuffer: lo.ToPtr(a.promptInt("Receive buffer", cfg.RecvBuffer)),
		SendBuffer: lo.ToPtr(a.promptInt("Send buffer", cfg.SendBuffer)),
		Blocking:   lo.ToPtr(!a.promptBool("Non-blocking mode?", !cfg.Blocking)),
	}
	if _, err := a.settings.Update(patch); err != nil {
		color.Red.Printf("Settings rejected: %v\n", err)
		a.record("settings", event.SeverityError, "settings update rejected: "+err.Error())
		return
	}
	color.Green.Println("Socket settings updated.")
	a.record("settings", event.SeverityInfo, "socket settings updated")
}

// ------------------------------------------------------------------
// Echo

func (a *app) echoMenu() {
	for {
		color.Cyan.Println("\nEcho Test Module")
		fmt.Println("1. Show current socket settings")
		fmt.Println("2. Update socket settings")
		fmt.Println("3. Start echo server")
		fmt.Println("4. Stop echo server")
		fmt.Println("5. Run echo client test")
		fmt.Println("0. Back to main menu")
		switch a.prompt("Select an option") {
		case "1":
			a.showSocketSettings()
		case "2":
			a.configureSocketSettings()
		case "3":
			a.startEchoServer()
		case "4":
			a.echoServer.Stop()
			fmt.Println("Echo server stopped.")
		case "5":
			if !a.echoServer.Running() {
				fmt.Println("Echo server not running. Starting server automatically...")
				if !a.startEchoServer() {
					continue
				}
			}
			a.runEchoTest()
		case "0":
			return
		default:
			color.Yellow.Println("Invalid option.")
		}
	}
}

func (a *app) startEchoServer() bool {
	if err := a.echoServer.Start(a.config.Host, a.config.EchoPort); err != nil {
		color.Red.Printf("Echo server failed to start: %v\n", err)
		return false
	}
	fmt.Printf("Echo server listening on %s\n", a.echoServer.Addr())
	return true
}

func (a *app) runEchoTest() {
	result, err := echo.RunTest(a.settings, a.config.Host, a.config.EchoPort, a.events, a.log)
	if err != nil {
		color.Red.Printf("Echo test failed: %v\n", err)
		return
	}
	fmt.Printf("Sent     : %s\n", result.Sent)
	fmt.Printf("Received : %s\n", result.Received)
	if result.Match {
		color.Green.Println("Connection successful, data matches")
	} else {
		color.Red.Println("Data mismatch")
	}
}

// ------------------------------------------------------------------
// Chat

func (a *app) chatMenu() {
	for {
		color.Cyan.Println("\nChat Module")
		fmt.Println("1. Start chat server")
		fmt.Println("2. Stop chat server")
		fmt.Println("3. Start chat client")
		fmt.Println("0. Back to main menu")
		switch a.prompt("Select an option") {
		case "1":
			host := a.promptString("Server host", a.config.Host)
			port := a.promptInt("Server port", a.config.ChatPort)
			if err := a.chatServer.Start(host, port); err != nil {
				color.Red.Printf("Chat server failed to start: %v\n", err)
				continue
			}
			fmt.Printf("Chat server listening on %s\n", a.chatServer.Addr())
		case "2":
			a.chatServer.Stop()
			fmt.Println("Chat server stopped.")
		case "3":
			a.runChatClient()
		case "0":
			return
		default:
			color.Yellow.Println("Invalid option.")
		}
	}
}

func (a *app) runChatClient() {
	host := a.promptString("Server host", a.config.Host)
	port := a.promptInt("Server port", a.config.ChatPort)
	name := a.promptString("Nickname", "guest")

	client := chat.NewClient(a.settings, a.events, a.log)
	if err := client.Connect(host, port, name); err != nil {
		color.Red.Printf("Could not connect: %v\n", err)
		return
	}
	fmt.Printf("Connected to %s:%d as %q. Type messages, '/quit' to exit.\n", host, port, name)
	client.Listen(func(line string) {
		color.Cyan.Println(line)
	})
	if err := client.Run(a.stdin); err != nil {
		a.log.Warn("input error", "error", err)
	}
	fmt.Println("Connection closed.")
	a.record(chat.ModuleName, event.SeverityInfo, fmt.Sprintf("client session completed for %q", name))
}

// ------------------------------------------------------------------
// Error management

func (a *app) errorMenu() {
	for {
		color.Cyan.Println("\nError Management")
		fmt.Println("1. Show log entries")
		fmt.Println("2. Clear log")
		fmt.Println("0. Back to main menu")
		switch a.prompt("Select an option") {
		case "1":
			lines, err := a.fileSink.ReadAll()
			if err != nil {
				color.Red.Printf("Could not read log: %v\n", err)
				continue
			}
			if len(lines) == 0 {
				fmt.Println("No log entries available.")
				continue
			}
			fmt.Println("\n--- Log Entries ---")
			for _, line := range lines {
				fmt.Println(line)
			}
		case "2":
			if err := a.fileSink.Clear(); err != nil {
				color.Red.Printf("Could not clear log: %v\n", err)
				continue
			}
			if err := a.repository.Purge(); err != nil {
				color.Red.Printf("Could not purge event store: %v\n", err)
				continue
			}
			fmt.Println("Log cleared.")
		case "0":
			return
		default:
			color.Yellow.Println("Invalid option.")
		}
	}
}

// ------------------------------------------------------------------
// Prompt helpers. Invalid input keeps the previous value, like every
// other prompt in the application.

func (a *app) prompt(label string) string {
	fmt.Printf("%s: ", label)
	if !a.stdin.Scan() {
		return "0"
	}
	return strings.TrimSpace(a.stdin.Text())
}

func (a *app) promptString(label, current string) string {
	value := a.prompt(fmt.Sprintf("%s [%s]", label, current))
	if value == "" {
		return current
	}
	return value
}

func (a *app) promptInt(label string, current int) int {
	value := a.prompt(fmt.Sprintf("%s [%d]", label, current))
	if value == "" {
		return current
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		color.Yellow.Println("Invalid integer, keeping previous value.")
		return current
	}
	return parsed
}

func (a *app) promptFloat(label string, current float64) float64 {
	value := a.prompt(fmt.Sprintf("%s [%g]", label, current))
	if value == "" {
		return current
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		color.Yellow.Println("Invalid number, keeping previous value.")
		return current
	}
	return parsed
}

func (a *app) promptBool(label string, current bool) bool {
	hint := "n"
	if current {
		hint = "y"
	}
	value := strings.ToLower(a.prompt(fmt.Sprintf("%s (y/n) [%s]", label, hint)))
	if value == "" {
		return current
	}
	return value == "y" || value == "yes" || value == "1"
}
