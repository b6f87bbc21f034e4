// Package cli is the terminal front end for a screening session. It is a
// thin shell over the session state machine: every keypress becomes an
// action, every transition repaints, and the emitted commands run off the
// UI loop while a spinner holds the screen.
package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/knhealth/knscreen/pkg/flow"
	"github.com/knhealth/knscreen/pkg/qrconfig"
	"github.com/knhealth/knscreen/pkg/report"
	"github.com/knhealth/knscreen/pkg/risk"
	"github.com/knhealth/knscreen/pkg/session"
)

type wizardStep int

const (
	stepLanguage wizardStep = iota
	stepName
	stepPhone
	stepAge
	stepQuestion
	stepSubmitting
	stepResult
)

type optionItem struct {
	title string
	desc  string
	value string
}

func (i optionItem) Title() string       { return i.title }
func (i optionItem) Description() string { return i.desc }
func (i optionItem) FilterValue() string { return i.title }

// sinksDoneMsg carries the outcome of the background sink run back into
// the update loop.
type sinksDoneMsg struct{ warning string }

type wizardModel struct {
	step    wizardStep
	machine *session.Machine
	state   session.State
	sinks   Sinks
	loc     qrconfig.Location

	list    list.Model
	input   textinput.Model
	spinner spinner.Model

	lang          flow.Language
	name          string
	phone         string
	validationErr string
	cancelled     bool
	err           error
	width         int
	height        int
}

var (
	styleTitle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	styleSubtitle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleError    = lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true)
	stylePrompt   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	styleSummary  = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	styleWarning  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	zoneStyles = map[risk.Zone]lipgloss.Style{
		risk.ZoneRed:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231")).Background(lipgloss.Color("160")).Padding(0, 2),
		risk.ZoneAmber: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("232")).Background(lipgloss.Color("214")).Padding(0, 2),
		risk.ZoneGreen: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231")).Background(lipgloss.Color("34")).Padding(0, 2),
	}
)

// RunWizard runs the interactive screening flow for the given location.
func RunWizard(machine *session.Machine, loc qrconfig.Location, sinks Sinks) error {
	model := newWizardModel(machine, loc, sinks)
	prog := tea.NewProgram(model, tea.WithAltScreen())
	result, err := prog.Run()
	if err != nil {
		return err
	}
	finalModel, ok := result.(wizardModel)
	if !ok {
		return fmt.Errorf("wizard failed to return results")
	}
	return finalModel.err
}

func newWizardModel(machine *session.Machine, loc qrconfig.Location, sinks Sinks) wizardModel {
	model := wizardModel{
		step:    stepLanguage,
		machine: machine,
		state:   session.NewState(),
		sinks:   sinks,
		loc:     loc,
		lang:    loc.Language,
	}
	if model.lang == "" {
		model.lang = flow.LanguageEnglish
	}
	model.spinner = spinner.New()
	model.spinner.Spinner = spinner.Dot
	model.spinner.Style = stylePrompt
	model.list = newList("Select language / மொழியை தேர்வு செய்க", languageItems())
	return model
}

func newList(title string, items []list.Item) list.Model {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.Foreground(lipgloss.Color("252"))
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(lipgloss.Color("205")).Bold(true)
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.Foreground(lipgloss.Color("244")).Italic(true)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(lipgloss.Color("212")).Italic(true)
	l := list.New(items, delegate, 0, 0)
	l.Title = styleTitle.Render(title)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowPagination(false)
	return l
}

func (m wizardModel) Init() tea.Cmd {
	return nil
}

func (m wizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		if m.isInputStep() {
			m.input.Width = msg.Width - 4
		}
		return m, nil

	case sinksDoneMsg:
		next, _, err := m.machine.Advance(m.state, session.SinksDone{Warning: msg.warning})
		if err != nil {
			m.err = err
			return m, tea.Quit
		}
		m.state = next
		m.step = stepResult
		return m, nil

	case spinner.TickMsg:
		if m.step == stepSubmitting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancelled = true
			return m, tea.Quit
		case "q":
			if !m.isInputStep() && m.step != stepSubmitting {
				m.cancelled = true
				return m, tea.Quit
			}
		case "esc":
			if m.step == stepQuestion {
				return m.handleBack()
			}
		case "enter":
			if m.step == stepLanguage || m.step == stepQuestion {
				return m.handleSelection()
			}
		}
		if m.step == stepResult {
			return m.handleResultKey(msg.String())
		}
	}

	if m.isInputStep() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if key, ok := msg.(tea.KeyMsg); ok && key.Type == tea.KeyEnter {
			return m.handleInputSubmit()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m wizardModel) isInputStep() bool {
	return m.step == stepName || m.step == stepPhone || m.step == stepAge
}

func (m wizardModel) View() string {
	var header string
	if m.validationErr != "" {
		header = styleError.Render("Validation: "+m.validationErr) + "\n\n"
	}

	switch m.step {
	case stepName:
		return header + styleSubtitle.Render("Enter your name:") + "\n\n" + m.input.View() + "\n\n" + stylePrompt.Render("Press Enter to continue.")
	case stepPhone:
		return header + styleSubtitle.Render("Enter your phone number (optional):") + "\n\n" + m.input.View() + "\n\n" + stylePrompt.Render("Press Enter to continue.")
	case stepAge:
		return header + styleSubtitle.Render("Enter your age:") + "\n\n" + m.input.View() + "\n\n" + stylePrompt.Render("Press Enter to continue.")
	case stepQuestion:
		return header + m.list.View() + "\n\n" + stylePrompt.Render(m.progressLine()+"  ↑/↓ move, Enter select, Esc back, q quit.")
	case stepSubmitting:
		return "\n  " + m.spinner.View() + styleSubtitle.Render(" Saving your screening result...") + "\n"
	case stepResult:
		return m.resultView()
	default:
		return header + m.list.View() + "\n\n" + stylePrompt.Render("Use ↑/↓ to move, Enter to select, q to quit.")
	}
}

func (m wizardModel) progressLine() string {
	visible, position := 0, 0
	for i, q := range m.machine.Questions {
		if q.Derived || !q.VisibleWith(m.state.Answers) {
			continue
		}
		visible++
		if i == m.state.Step {
			position = visible
		}
	}
	return fmt.Sprintf("Question %d of %d.", position, visible)
}

func (m wizardModel) handleSelection() (tea.Model, tea.Cmd) {
	item, ok := m.list.SelectedItem().(optionItem)
	if !ok {
		return m, nil
	}

	switch m.step {
	case stepLanguage:
		m.lang = flow.Language(item.value)
		m.setInput(stepName, "Full name", m.name)
	case stepQuestion:
		q := m.machine.Questions[m.state.Step]
		next, cmds, err := m.machine.Advance(m.state, session.Answer{QuestionID: q.ID, Value: item.value})
		if err != nil {
			m.validationErr = err.Error()
			return m, nil
		}
		m.state = next
		m.validationErr = ""
		if next.Phase == session.PhaseSubmitting {
			m.step = stepSubmitting
			return m, tea.Batch(m.spinner.Tick, m.runSinks(cmds))
		}
		m.showQuestion()
	}
	return m, nil
}

// runSinks executes the emitted commands off the update loop.
func (m wizardModel) runSinks(cmds []session.Command) tea.Cmd {
	sinks := m.sinks
	return func() tea.Msg {
		return sinksDoneMsg{warning: sinks.Run(cmds)}
	}
}

func (m wizardModel) handleInputSubmit() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	m.validationErr = ""

	switch m.step {
	case stepName:
		if value == "" {
			m.validationErr = "name is required"
			return m, nil
		}
		m.name = value
		m.setInput(stepPhone, "98765 43210", m.phone)
	case stepPhone:
		m.phone = value
		m.setInput(stepAge, "45", "")
	case stepAge:
		age, err := strconv.Atoi(value)
		if err != nil {
			m.validationErr = "age must be a number"
			return m, nil
		}
		next, _, err := m.machine.Advance(m.state, session.SubmitIntake{Identity: session.Identity{
			Name:     m.name,
			Phone:    m.phone,
			Age:      age,
			Language: m.lang,
		}})
		if err != nil {
			m.validationErr = err.Error()
			return m, nil
		}
		m.state = next
		m.showQuestion()
	}
	return m, nil
}

func (m wizardModel) handleBack() (tea.Model, tea.Cmd) {
	next, _, err := m.machine.Advance(m.state, session.Back{})
	if err != nil {
		return m, nil
	}
	m.state = next
	m.validationErr = ""
	if next.Phase == session.PhaseIntake {
		// The identity fields are retained; re-entering the flow keeps
		// every answer already given.
		m.setInput(stepName, "Full name", m.name)
		return m, nil
	}
	m.showQuestion()
	return m, nil
}

func (m wizardModel) handleResultKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "n":
		next, _, err := m.machine.Advance(m.state, session.Restart{})
		if err != nil {
			return m, nil
		}
		m.state = next
		m.name, m.phone = "", ""
		m.step = stepLanguage
		m.list = newList("Select language / மொழியை தேர்வு செய்க", languageItems())
		m.applyListSize()
	case "r":
		next, _, err := m.machine.Advance(m.state, session.Restart{KeepIdentity: true})
		if err != nil {
			return m, nil
		}
		m.state = next
		m.showQuestion()
	}
	return m, nil
}

// showQuestion points the list at the current step's question.
func (m *wizardModel) showQuestion() {
	m.step = stepQuestion
	q := m.machine.Questions[m.state.Step]
	items := make([]list.Item, 0, len(q.Options))
	for _, o := range q.Options {
		items = append(items, optionItem{title: o.Label.Text(m.lang), value: o.Value})
	}
	m.list = newList(q.Label.Text(m.lang), items)
	m.applyListSize()

	// Re-entering a question after Back keeps the earlier choice selected.
	if prev, ok := m.state.Answers[q.ID]; ok {
		for i, o := range q.Options {
			if o.Value == prev {
				m.list.Select(i)
				break
			}
		}
	}
}

func (m *wizardModel) setInput(step wizardStep, placeholder, value string) {
	m.step = step
	m.validationErr = ""
	m.input = textinput.New()
	m.input.Prompt = stylePrompt.Render("> ")
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	m.input.Focus()
	if m.width > 0 {
		m.input.Width = m.width - 4
	}
}

func (m *wizardModel) applyListSize() {
	if m.width > 0 && m.height > 0 {
		m.list.SetSize(m.width, m.height-4)
	}
}

func (m wizardModel) resultView() string {
	result := m.state.Result
	if result == nil {
		return styleError.Render("No result available.")
	}

	zoneStyle, ok := zoneStyles[result.Zone]
	if !ok {
		zoneStyle = styleSummary
	}

	lines := []string{
		"",
		"  " + zoneStyle.Render(fmt.Sprintf(" %s ZONE ", result.Zone)),
		"",
		"  " + styleSummary.Render("Priority code: ") + styleTitle.Render(result.PriorityCode),
		"  " + styleSubtitle.Render(zoneAdvice(result.Zone)),
	}

	if token, err := report.Encode(report.New(*result, m.state.Answers, m.lang, m.machine.Questions)); err == nil {
		lines = append(lines, "", "  "+styleSubtitle.Render("Report token (scan at the clinic desk):"), "  "+token)
	}
	if m.state.Warning != "" {
		lines = append(lines, "", "  "+styleWarning.Render("Note: "+m.state.Warning))
	}
	lines = append(lines, "", "  "+stylePrompt.Render("n: new screening, r: screen a family member, q: quit"))
	return strings.Join(lines, "\n")
}

func zoneAdvice(z risk.Zone) string {
	switch z {
	case risk.ZoneRed:
		return "Please visit a kidney specialist as soon as possible."
	case risk.ZoneAmber:
		return "Please schedule a routine check-up with your doctor."
	default:
		return "No signs of concern. Re-screen in a year."
	}
}

func languageItems() []list.Item {
	return []list.Item{
		optionItem{title: "English", desc: "Continue in English", value: string(flow.LanguageEnglish)},
		optionItem{title: "தமிழ்", desc: "தமிழில் தொடரவும்", value: string(flow.LanguageTamil)},
	}
}
