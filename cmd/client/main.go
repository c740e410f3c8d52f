package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mockmate/mockmate/pkg/auth"
	"github.com/mockmate/mockmate/pkg/client"
	"github.com/mockmate/mockmate/pkg/config"
	"github.com/mockmate/mockmate/pkg/logging"
	"github.com/mockmate/mockmate/pkg/round"
	"github.com/mockmate/mockmate/pkg/version"
)

func main() {
	envFile := flag.String("env", ".env", "path to .env file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("mockmate", version.String())
		return
	}

	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	_ = logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	engine, err := client.NewEngine(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer engine.Close()

	engine.OnSessionInvalidated = func() {
		fmt.Println("\nsession expired — please log in again")
	}
	engine.OnRound = printRound

	ctx := context.Background()
	session := engine.Bootstrap(ctx)
	if session.Authenticated {
		fmt.Printf("welcome back, %s\n", session.User.Name)
	} else {
		fmt.Println("not logged in — use 'login' or 'signup'")
	}

	repl(ctx, engine)
}

func repl(ctx context.Context, engine *client.Engine) {
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			return
		}
		fields := strings.Fields(in.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "login":
			email := prompt(in, "email: ")
			password := prompt(in, "password: ")
			if _, err := engine.Login(ctx, auth.Credentials{Email: email, Password: password}); err != nil {
				fmt.Println("login failed:", err)
				continue
			}
			fmt.Println("logged in")

		case "signup":
			s := auth.Signup{
				Name:     prompt(in, "name: "),
				Email:    prompt(in, "email: "),
				Password: prompt(in, "password: "),
			}
			if err := engine.Signup(ctx, s); err != nil {
				fmt.Println("signup failed:", err)
				continue
			}
			fmt.Println("account created — now log in")

		case "logout":
			engine.Logout(ctx)
			fmt.Println("logged out")

		case "resume":
			if len(fields) < 2 {
				fmt.Println("usage: resume <file>")
				continue
			}
			jd := prompt(in, "job description: ")
			if err := engine.UploadResume(ctx, fields[1], jd); err != nil {
				fmt.Println("upload failed:", err)
				continue
			}
			fmt.Println("resume uploaded")

		case "start":
			engine.StartRound(ctx)
			maybePlay(ctx, engine)

		case "retry":
			engine.RetryRound(ctx)
			maybePlay(ctx, engine)

		case "play":
			if err := engine.PlayQuestion(ctx); err != nil {
				fmt.Println("playback failed:", err)
			}

		case "answer":
			if err := engine.BeginAnswer(); err != nil {
				fmt.Println("cannot record:", err)
				continue
			}
			prompt(in, "recording... press Enter to stop ")
			engine.FinishAnswer()
			maybePlay(ctx, engine)

		case "status":
			printRound(engine.Round())

		case "history":
			entries, err := engine.History(ctx)
			if err != nil {
				fmt.Println("history failed:", err)
				continue
			}
			for _, e := range entries {
				fmt.Printf("#%d  %s  %d questions\n", e.ID, e.FinishedAt.Format("2006-01-02 15:04"), e.Total)
			}

		case "quit", "exit":
			return

		default:
			fmt.Println("commands: login signup logout resume start play answer retry status history quit")
		}
	}
}

func prompt(in *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !in.Scan() {
		return ""
	}
	return strings.TrimSpace(in.Text())
}

func maybePlay(ctx context.Context, engine *client.Engine) {
	snap := engine.Round()
	if snap.Phase == round.PhaseAsking && engine.AutoPlay() {
		if err := engine.PlayQuestion(ctx); err != nil {
			fmt.Println("playback failed:", err)
		}
	}
}

func printRound(s round.Snapshot) {
	switch s.Phase {
	case round.PhaseAsking:
		if s.Current == nil {
			return
		}
		fmt.Printf("\n[%d/%d] %s\n", s.Progress.Current+1, s.Progress.Total, s.Current.Text)
	case round.PhaseSubmitting:
		fmt.Println("\nsubmitting answer...")
	case round.PhaseFinished:
		fmt.Println("\ninterview complete")
		if s.Summary != nil {
			if raw, err := json.MarshalIndent(s.Summary, "", "  "); err == nil {
				fmt.Println(string(raw))
			}
		}
	case round.PhaseError:
		fmt.Println("\nround error:", s.Err)
	}
}
