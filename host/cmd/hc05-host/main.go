package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"hc05link/bluetooth"
	"hc05link/core"
	"hc05link/hc05"
	"hc05link/host/config"
	"hc05link/host/serial"
	"hc05link/protocol"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	device     = flag.String("device", "/dev/ttyUSB0", "Serial device path (without -config)")
	backend    = flag.String("backend", config.BackendModem, "Serial backend: modem or native (without -config)")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
)

// closer is implemented by backends that hold the device open past Stop
type closer interface {
	Close() error
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level := cfg.Level()
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	fmt.Println("HC-05 Host - Bluetooth module console")
	fmt.Println("=====================================")
	fmt.Println()

	btCfg := cfg.Bluetooth()
	btCfg.Logger = log
	var port closer
	switch cfg.Serial.Backend {
	case config.BackendNative:
		ch, err := serial.NewNative(cfg.SerialPort(), log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		btCfg.Serial = ch
		btCfg.GPIO = core.NopGPIO{} // KEY and RESET wired by hand
	default:
		m, err := serial.NewModem(cfg.SerialPort(), log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		btCfg.Serial = m
		btCfg.GPIO = m
		port = m
	}

	dev, err := bluetooth.New(cfg.Variant)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v (available: %s)\n", err, strings.Join(bluetooth.Variants(), ", "))
		os.Exit(1)
	}

	fmt.Printf("Opening %s module on %s (%s backend)...\n", cfg.Variant, cfg.Serial.Device, cfg.Serial.Backend)
	if err := dev.Open(&btCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open module: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		dev.Close()
		if port != nil {
			port.Close()
		}
	}()
	fmt.Println("Module ready in communication mode.")

	drv, _ := dev.(*hc05.Driver)

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		if cmd == "quit" || cmd == "exit" || cmd == "q" {
			fmt.Println("Goodbye!")
			return
		}
		if err := run(dev, drv, cmd, arg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		return config.Load(*configPath)
	}
	cfg := config.Default(*device)
	cfg.Serial.Backend = *backend
	return cfg, cfg.Validate()
}

var errNeedsHC05 = errors.New("command needs the hc05 variant")

func run(dev bluetooth.Device, drv *hc05.Driver, cmd, arg string) error {
	// Commands on the portable capability table
	switch cmd {
	case "help", "?":
		printHelp()
		return nil
	case "name":
		if err := dev.SetName(arg); err != nil {
			return err
		}
		fmt.Printf("Name set to %q\n", arg)
		return nil
	case "pin":
		if err := dev.SetPinCode(arg); err != nil {
			return err
		}
		fmt.Println("Pin code set")
		return nil
	case "reset":
		if err := dev.ResetModuleSettings(); err != nil {
			return err
		}
		fmt.Println("Factory settings restored")
		return nil
	case "send":
		if err := dev.SendBuffer([]byte(arg + protocol.Terminator)); err != nil {
			return err
		}
		fmt.Printf("Queued %d bytes\n", len(arg)+len(protocol.Terminator))
		return nil
	case "read":
		return readAll(dev)
	}

	if drv == nil {
		return fmt.Errorf("%s: %w", cmd, errNeedsHC05)
	}
	switch cmd {
	case "status":
		st := drv.QueueStats()
		fmt.Printf("Mode: %s\n", drv.Mode())
		fmt.Printf("Send queue:    %d queued, %d free\n", st.SendQueued, st.SendFree)
		fmt.Printf("Receive queue: %d queued, %d free\n", st.ReceiveQueued, st.ReceiveFree)
	case "at":
		if arg != "" {
			resp, err := drv.SendCommand(protocol.NewFrame(arg, nil))
			printResponse(resp)
			return err
		}
		if err := drv.EnterATMode(); err != nil {
			return err
		}
		fmt.Println("AT command mode")
	case "comm":
		if err := drv.EnterCommMode(); err != nil {
			return err
		}
		fmt.Println("Communication mode")
	case "ping":
		start := time.Now()
		if err := drv.TestAT(); err != nil {
			return err
		}
		fmt.Printf("OK (%v)\n", time.Since(start).Round(time.Millisecond))
	case "version":
		v, err := drv.Version()
		if err != nil {
			return err
		}
		fmt.Printf("Version: %s\n", v)
	case "getname":
		name, err := drv.QueryName()
		if err != nil {
			return err
		}
		fmt.Printf("Name: %s\n", name)
	case "uart":
		baud, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return fmt.Errorf("uart: %w: %q is not a baud rate", bluetooth.ErrInvalidArgument, arg)
		}
		if err := drv.SetUART(bluetooth.BaudRate(baud), 0, 0); err != nil {
			return err
		}
		fmt.Println("UART settings stored; they apply after the module restarts")
	case "role":
		role, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("role: %w: %q", bluetooth.ErrInvalidArgument, arg)
		}
		if err := drv.SetRole(role); err != nil {
			return err
		}
		fmt.Println("Role set")
	default:
		fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", cmd)
	}
	return nil
}

func readAll(dev bluetooth.Device) error {
	buf := make([]byte, 64)
	total := 0
	for dev.CanReceive() {
		n, err := dev.ReadBuffer(buf)
		if err != nil {
			break
		}
		os.Stdout.Write(buf[:n])
		total += n
	}
	if total == 0 {
		fmt.Println("(nothing received)")
		return nil
	}
	fmt.Printf("\n(%d bytes)\n", total)
	return nil
}

func printResponse(resp protocol.Response) {
	for _, l := range resp.Lines {
		fmt.Println(l)
	}
	if resp.Final != "" {
		fmt.Println(resp.Final)
	}
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  help            - Show this help message")
	fmt.Println("  status          - Show mode and queue fill levels")
	fmt.Println("  send <text>     - Queue text (plus CR LF) for the radio link")
	fmt.Println("  read            - Print received data")
	fmt.Println("  name <name>     - Set the module name")
	fmt.Println("  pin <pin>       - Set the pairing pin code")
	fmt.Println("  reset           - Restore factory settings")
	fmt.Println("  ping            - Send AT and wait for OK")
	fmt.Println("  version         - Query the firmware version")
	fmt.Println("  getname         - Query the stored name")
	fmt.Println("  uart <baud>     - Store the communication baud rate")
	fmt.Println("  role <0|1|2>    - Set slave, master or slave-loop role")
	fmt.Println("  at [command]    - Run a raw AT command, or stay in AT mode")
	fmt.Println("  comm            - Return to communication mode")
	fmt.Println("  quit/exit/q     - Exit the program")
	fmt.Println()
}
