package ui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pterm/pterm"

	"github.com/ohmynofan/mapp-task-bot/internal/domain/model"
	"github.com/ohmynofan/mapp-task-bot/pkg/utils"
)

type Board struct {
	Identity model.Identity
	Profile  model.Profile
	Tasks    []model.Task
	Status   string
	Flagged  bool
	Credited int
	Missed   int
}

var (
	multi   *pterm.MultiPrinter
	spinner *pterm.SpinnerPrinter
	board   Board
	mu      sync.Mutex
)

func StartUISystem() {
	m, _ := pterm.DefaultMultiPrinter.Start()
	multi = m
}

func StopUISystem() {
	if multi != nil {
		multi.Stop()
	}
}

func UpdateProfile(identity model.Identity, profile model.Profile) {
	mu.Lock()
	defer mu.Unlock()
	board.Identity = identity
	board.Profile = profile
	render()
}

func UpdateTasks(tasks []model.Task) {
	mu.Lock()
	defer mu.Unlock()
	board.Tasks = tasks
	render()
}

func UpdateStatus(status string) {
	mu.Lock()
	defer mu.Unlock()
	board.Status = status
	render()
}

func UpdateJournal(credited, missed int) {
	mu.Lock()
	defer mu.Unlock()
	board.Credited = credited
	board.Missed = missed
	render()
}

func SetFlagged(flagged bool) {
	mu.Lock()
	defer mu.Unlock()
	board.Flagged = flagged
	render()
}

func SetSpinnerSuccess(finalMessage string) {
	mu.Lock()
	defer mu.Unlock()
	board.Status = finalMessage
	render()
	if spinner != nil {
		spinner.Success()
	}
}

func SetSpinnerError(finalMessage string) {
	mu.Lock()
	defer mu.Unlock()
	board.Status = finalMessage
	render()
	if spinner != nil {
		spinner.Fail()
	}
}

// render must be called with mu held.
func render() {
	if multi == nil {
		return
	}
	content := RenderBoard(board)
	if spinner != nil {
		spinner.UpdateText(content)
		return
	}
	spinner, _ = pterm.DefaultSpinner.
		WithWriter(multi.NewWriter()).
		WithRemoveWhenDone(false).
		Start(content)
}

func RenderBoard(b Board) string {
	var builder strings.Builder
	name := defaultString(b.Profile.Username, b.Identity.DisplayName)
	builder.WriteString(fmt.Sprintf(`
=============== %s ================
User ID       : %d
Device        : %s
Balance       : %s
Ads Watched   : %d
Today         : %d / %d
Referrals     : %d
Session Log   : %d credited, %d missed
`,
		defaultString(name, "-"),
		b.Identity.PlatformUserID,
		defaultString(b.Identity.DeviceID, "-"),
		utils.FormatUSD(b.Profile.Balance),
		b.Profile.AdsWatched,
		b.Profile.DailyAds,
		b.Profile.DailyLimit,
		b.Profile.Referrals,
		b.Credited,
		b.Missed))

	if b.Flagged {
		builder.WriteString("\nWARNING: multiple accounts detected on this device\n")
	}

	builder.WriteString("\nTasks :\n")
	for _, task := range b.Tasks {
		builder.WriteString(TaskLine(task))
		builder.WriteString("\n")
	}

	builder.WriteString(fmt.Sprintf("\nStatus   : %s\n===========================================", defaultString(b.Status, "-")))
	return builder.String()
}

func TaskLine(task model.Task) string {
	timer := utils.FormatClock(task.RemainingSeconds)
	action := "Wait"
	switch {
	case task.InFlight():
		timer = "In Progress"
		action = "Continue"
	case task.RemainingSeconds == 0:
		timer = "Ready"
		action = "Start"
	}
	return fmt.Sprintf("- %-28s %s  %-11s [%s]", task.Title, utils.FormatUSD(task.Reward), timer, action)
}

func defaultString(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
