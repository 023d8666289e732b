// messenger is a command line client for the messenger chat API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/andrewanujbusiness/messenger/clients/go/messenger"
	"github.com/andrewanujbusiness/messenger/internal/models"
	"github.com/andrewanujbusiness/messenger/internal/realtime"
)

var (
	serverURL string
	jsonOut   bool
	client    *messenger.Client
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	nameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	toneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Italic(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

var rootCmd = &cobra.Command{
	Use:   "messenger",
	Short: "Command line client for the messenger chat API",
	Long: `Chat with other users from the terminal.

Quick Start:
  messenger login alice password   # Start a session
  messenger users                  # List people to talk to
  messenger send 2 "hey bob"       # Send a message
  messenger listen                 # Stream incoming messages`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		client = messenger.NewClient(serverURL)
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <username> <password>",
	Short: "Log in and save the session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.Login(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if err := client.SaveSession(); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		fmt.Printf("%s logged in as %s %s\n", okStyle.Render("✓"), nameStyle.Render(resp.User.Name), idStyle.Render("#"+resp.User.ID))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return client.ClearSession()
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List other users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := client.ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(users)
		}

		fmt.Println(headerStyle.Render(fmt.Sprintf("%d users", len(users))))
		for _, u := range users {
			line := fmt.Sprintf("  %s %s", idStyle.Render(fmt.Sprintf("%-4s", u.ID)), nameStyle.Render(u.Name))
			if u.Status != "" {
				line += " " + timeStyle.Render(u.Status)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var whoCmd = &cobra.Command{
	Use:   "who <user_id>",
	Short: "Show a user's profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := client.GetUser(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(user)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <user_id>",
	Short: "Show the conversation with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		messages, err := client.GetConversation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(messages)
		}
		if len(messages) == 0 {
			fmt.Println(timeStyle.Render("no messages yet"))
			return nil
		}
		for _, msg := range messages {
			printMessage(msg)
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <user_id> <text>",
	Short: "Send a message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := client.SendMessage(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Printf("%s sent %s\n", okStyle.Render("✓"), idStyle.Render(msg.ID))
		return nil
	},
}

var toneCmd = &cobra.Command{
	Use:   "tone <user_id> [tone|none]",
	Short: "Show or set how a user's messages are rewritten for you",
	Long: fmt.Sprintf(`Show or set the tone applied to messages from a user.

Tones: %s
Use "none" to clear the preference.`, toneNames()),
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			t   models.Tone
			err error
		)
		if len(args) == 1 {
			t, err = client.GetTone(cmd.Context(), args[0])
		} else {
			want := args[1]
			if want == "none" {
				want = ""
			}
			t, err = models.ParseTone(want)
			if err != nil {
				return err
			}
			t, err = client.SetTone(cmd.Context(), args[0], t)
		}
		if err != nil {
			return err
		}

		if t == "" {
			fmt.Println(timeStyle.Render("no tone preference"))
		} else {
			fmt.Println(toneStyle.Render(string(t)))
		}
		return nil
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stream incoming messages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if client.User == nil {
			return messenger.ErrNotLoggedIn
		}

		stream, err := client.Connect(cmd.Context())
		if err != nil {
			return err
		}
		defer stream.Close()

		if err := stream.Join(client.User.ID); err != nil {
			return err
		}

		go func() {
			<-cmd.Context().Done()
			stream.Close()
		}()

		for {
			ev, err := stream.Next()
			if err != nil {
				if cmd.Context().Err() != nil {
					return nil
				}
				return err
			}
			switch ev.Name {
			case realtime.EventJoined:
				fmt.Println(headerStyle.Render("listening as " + client.User.Name))
			case realtime.EventReceiveMessage:
				printMessage(*ev.Message)
			case realtime.EventError:
				fmt.Println(errStyle.Render(ev.Error.Code + ": " + ev.Error.Message))
			}
		}
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.Health(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(resp)
		}

		status := okStyle.Render(resp.Status)
		if resp.Status != "healthy" {
			status = errStyle.Render(resp.Status)
		}
		fmt.Printf("%s %s\n", status, timeStyle.Render(resp.Version))

		names := make([]string, 0, len(resp.Checks))
		for name := range resp.Checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			check := resp.Checks[name]
			fmt.Printf("  %-8s %s %s\n", name, check.Status, timeStyle.Render(check.Latency+check.Message))
		}
		return nil
	},
}

func printMessage(msg models.Message) {
	ts := time.UnixMilli(msg.Timestamp).Format("2006-01-02 15:04:05")
	from := "#" + msg.SenderID
	if client.User != nil && msg.SenderID == client.User.ID {
		from = "me"
	}

	line := fmt.Sprintf("%s %s: %s", timeStyle.Render("["+ts+"]"), nameStyle.Render(from), msg.Text)
	if msg.ToneApplied != "" {
		line += " " + toneStyle.Render("("+string(msg.ToneApplied)+")")
	}
	fmt.Println(line)
}

func toneNames() string {
	names := make([]string, len(models.Tones))
	for i, t := range models.Tones {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	defaultURL := os.Getenv("MESSENGER_URL")
	if defaultURL == "" {
		defaultURL = messenger.DefaultBaseURL
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultURL, "Server URL (env MESSENGER_URL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print raw JSON")

	rootCmd.AddCommand(loginCmd, logoutCmd, usersCmd, whoCmd, historyCmd, sendCmd, toneCmd, listenCmd, healthCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("Error:"), err)
		os.Exit(1)
	}
}
