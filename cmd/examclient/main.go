package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/proctoraegis/examclient/internal/api"
	"github.com/proctoraegis/examclient/internal/auth"
	"github.com/proctoraegis/examclient/internal/autosave"
	"github.com/proctoraegis/examclient/internal/clock"
	"github.com/proctoraegis/examclient/internal/config"
	"github.com/proctoraegis/examclient/internal/logger"
	"github.com/proctoraegis/examclient/internal/model"
	"github.com/proctoraegis/examclient/internal/session"
	"github.com/proctoraegis/examclient/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if len(os.Args) < 2 {
		fmt.Println("usage: examclient <exam-id>")
		os.Exit(2)
	}
	examID, err := uuid.Parse(os.Args[1])
	if err != nil {
		fmt.Println("invalid exam id:", os.Args[1])
		os.Exit(2)
	}

	kv, closeKV, err := openStore(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer closeKV()

	authSession := auth.NewSession(kv, log)
	client := api.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, authSession, log)

	if err := authSession.Validate(time.Now()); err != nil {
		if loginErr := login(client, authSession); loginErr != nil {
			log.Fatal().Err(loginErr).Msg("Login failed")
		}
	}

	done := make(chan struct{})
	var exitOnce sync.Once
	exit := func() { exitOnce.Do(func() { close(done) }) }
	teardown := func() {
		authSession.Logout()
		fmt.Println("\nYour exam is finished. You have been logged out.")
		exit()
	}

	controller := session.NewController(
		cfg,
		client,
		store.NewSessionStore(kv, log),
		clock.System(),
		teardown,
		log,
	)
	defer controller.Close()

	ctx := context.Background()
	if err := controller.Load(ctx, examID); err != nil {
		// Fatal load errors block entry; retrying is the only action.
		fmt.Println("Could not load the exam:", err)
		fmt.Println("Press enter to retry, or Ctrl-C to give up.")
		bufio.NewReader(os.Stdin).ReadString('\n')
		if err := controller.Load(ctx, examID); err != nil {
			log.Fatal().Err(err).Msg("Exam load failed")
		}
	}

	go renderEvents(controller)

	fmt.Printf("\n=== %s ===\n", controller.Exam().Title)
	fmt.Println("Commands: show, edit, lang <name>, next, prev, goto <n>, submit, submit-exam, quit")
	printQuestion(controller)

	go repl(ctx, controller, exit)

	<-done
}

// openStore builds the configured KeyValueStore backend.
func openStore(cfg *config.Config, log zerolog.Logger) (store.KeyValueStore, func(), error) {
	switch cfg.StorageBackend {
	case "redis":
		rs, err := store.NewRedisStore(cfg.RedisURL, log)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { rs.Close() }, nil
	case "memory":
		return store.NewMemoryStore(), func() {}, nil
	default:
		fs, err := store.NewFileStore(cfg.StorageDir)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	}
}

// login prompts for credentials, password hidden.
func login(client *api.Client, authSession *auth.Session) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Username: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)

	fmt.Print("Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp, err := client.Login(ctx, username, string(bytePassword))
	if err != nil {
		return err
	}
	return authSession.SetCredentials(resp.AccessToken, resp.StudentID)
}

// renderEvents prints the countdown and autosave indicator.
func renderEvents(controller *session.Controller) {
	for ev := range controller.Events() {
		switch ev.Kind {
		case session.EventTick:
			// Only chatter when it matters.
			if ev.Remaining <= 60 || ev.Remaining%60 == 0 {
				fmt.Printf("\r[time left: %s] ", formatRemaining(ev.Remaining))
			}
		case session.EventAutosave:
			if ev.Autosave == autosave.StatusError {
				fmt.Print("\r[save failed, will retry] ")
			}
		case session.EventState:
			if ev.State == model.SessionCompleted {
				fmt.Println("\nExam submitted.")
			}
		}
	}
}

func repl(ctx context.Context, controller *session.Controller, exit func()) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			controller.Close()
			exit()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "show":
			printQuestion(controller)

		case "edit":
			fmt.Println("Enter your solution; finish with a single '.' line:")
			var lines []string
			for scanner.Scan() {
				text := scanner.Text()
				if text == "." {
					break
				}
				lines = append(lines, text)
			}
			controller.OnEdit(strings.Join(lines, "\n"))

		case "lang":
			if len(fields) < 2 {
				fmt.Println("usage: lang <javascript|python|java|cpp|c>")
				continue
			}
			if err := controller.SetLanguage(fields[1]); err != nil {
				fmt.Println(err)
			}

		case "next":
			_, idx, _, _ := controller.Current()
			navigate(ctx, controller, idx+1)

		case "prev":
			_, idx, _, _ := controller.Current()
			navigate(ctx, controller, idx-1)

		case "goto":
			if len(fields) < 2 {
				fmt.Println("usage: goto <question number>")
				continue
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("not a number:", fields[1])
				continue
			}
			navigate(ctx, controller, n-1)

		case "submit":
			if _, err := controller.SubmitAnswer(ctx); err != nil {
				if errors.Is(err, session.ErrEmptyAnswer) {
					fmt.Println("Nothing to submit: the answer is empty.")
				} else {
					fmt.Println("Submit failed:", err)
				}
				continue
			}
			fmt.Println("Answer submitted. Submitted answers are read-only.")

		case "submit-exam":
			fmt.Printf("You have submitted %d of %d questions. Submit the exam? [y/N] ",
				controller.SubmittedCount(), len(controller.Questions()))
			if !scanner.Scan() || strings.ToLower(strings.TrimSpace(scanner.Text())) != "y" {
				fmt.Println("Cancelled.")
				continue
			}
			controller.Finalize(ctx, session.ReasonStudentSubmit)
			return

		case "quit":
			// Leaving is not submitting: timers stop, the snapshot stays.
			controller.Close()
			exit()
			return

		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}

func navigate(ctx context.Context, controller *session.Controller, to int) {
	if err := controller.Navigate(ctx, to); err != nil {
		fmt.Println(err)
		return
	}
	printQuestion(controller)
}

func printQuestion(controller *session.Controller) {
	q, idx, draft, state := controller.Current()
	total := len(controller.Questions())

	fmt.Printf("\n[%d/%d] %s (%s) [%s]\n", idx+1, total, q.Title, q.Difficulty, state)
	fmt.Println(q.Body)
	fmt.Printf("\n-- draft (%s) --\n%s\n", draft.Language, draft.Content)
	if state == model.AnswerSubmitted {
		fmt.Println("(submitted: read-only)")
	}
}

func formatRemaining(seconds int64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
