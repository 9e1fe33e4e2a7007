package main

import (
	"bufio"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"bldcservo/core"
	"bldcservo/host/telemetry"
	"bldcservo/tinycompress"
)

var (
	device        = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud          = flag.Int("baud", 250000, "Baud rate (ignored for USB CDC)")
	dashboardAddr = flag.String("dashboard", "", "if set, also serve a telemetry WebSocket dashboard on this address (e.g. :8080)")
)

var modeByName = map[string]core.Mode{
	"stopped":             core.ModeStopped,
	"pwm":                 core.ModePwm,
	"voltage":             core.ModeVoltage,
	"voltage_foc":         core.ModeVoltageFoc,
	"voltage_dq":          core.ModeVoltageDq,
	"current":             core.ModeCurrent,
	"position":            core.ModePosition,
	"zero_velocity":       core.ModeZeroVelocity,
	"stay_within_bounds":  core.ModeStayWithinBounds,
	"calibrate":           core.ModeCalibrating,
}

func main() {
	flag.Parse()
	_ = baud // USB CDC ignores the configured baud rate

	fmt.Println("servoctl - servo controller host implementation")
	fmt.Println("===================================================")

	ctl := telemetry.NewController()
	fmt.Printf("Connecting to controller on %s...\n", *device)
	if err := ctl.Connect(*device); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer ctl.Close()
	fmt.Println("Connected.")

	if *dashboardAddr != "" {
		dash := telemetry.NewDashboardServer(ctl, *dashboardAddr, 100*time.Millisecond)
		go func() {
			if err := dash.Run(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "dashboard server error: %v\n", err)
			}
		}()
		defer dash.Close()
		fmt.Printf("Dashboard WebSocket serving on %s/ws\n", *dashboardAddr)
	}

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

		parts := strings.Fields(line)
		switch parts[0] {
		case "quit", "exit", "q":
			fmt.Println("Goodbye!")
			return

		case "help", "?":
			printHelp()

		case "status":
			if err := printStatus(ctl); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "mode":
			if err := setMode(ctl, parts[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "position":
			if err := setPosition(ctl, parts[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "stop":
			if err := ctl.SendCommand(core.NewCommandData()); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "identify":
			if err := printIdentify(ctl); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		default:
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", parts[0])
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  status                 - Request and print a Status snapshot")
	fmt.Println("  mode <name>             - Switch mode (stopped, position, current, voltage, ...)")
	fmt.Println("  position <target> [vel] - Command a position-mode setpoint")
	fmt.Println("  stop                    - Send a default (stopped) CommandData")
	fmt.Println("  identify                - Fetch and print the controller's configuration dump")
	fmt.Println("  quit/exit/q             - Exit the program")
	fmt.Println()
}

func printStatus(ctl *telemetry.Controller) error {
	status, err := ctl.RequestStatus()
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	fmt.Printf("mode=%s fault=%s position=%.3f velocity=%.3f bus_voltage=%.2fV\n",
		status.Mode, status.Fault, status.UnwrappedScaled, status.VelocityUnitsPerS, status.BusVoltage)
	return nil
}

func printIdentify(ctl *telemetry.Controller) error {
	compressed, err := ctl.RequestIdentify()
	if err != nil {
		return fmt.Errorf("failed to get identify: %w", err)
	}
	z := tinycompress.NewZlib(4096)
	raw, n, err := z.Decompress(compressed, len(compressed))
	if err != nil {
		return fmt.Errorf("failed to decompress config dump: %w", err)
	}
	fmt.Print(string(raw[:n]))
	return nil
}

func setMode(ctl *telemetry.Controller, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: mode <name>")
	}
	mode, ok := modeByName[args[0]]
	if !ok {
		return fmt.Errorf("unknown mode: %s", args[0])
	}
	cmd := core.NewCommandData()
	cmd.Mode = mode
	return ctl.SendCommand(cmd)
}

func setPosition(ctl *telemetry.Controller, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: position <target> [velocity]")
	}
	target, err := strconv.ParseFloat(args[0], 32)
	if err != nil {
		return fmt.Errorf("invalid position: %w", err)
	}
	var velocity float64
	if len(args) > 1 {
		velocity, err = strconv.ParseFloat(args[1], 32)
		if err != nil {
			return fmt.Errorf("invalid velocity: %w", err)
		}
	}

	cmd := core.NewCommandData()
	cmd.Mode = core.ModePosition
	cmd.Position = float32(target)
	cmd.Velocity = float32(velocity)
	return ctl.SendCommand(cmd)
}
