package output

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
)

// TableFormatter renders views with go-pretty, as a box table or as markdown.
type TableFormatter struct {
	Markdown bool
}

// FormatLedger renders one row per user with a totals footer.
func (f *TableFormatter) FormatLedger(view *LedgerView) (string, error) {
	if view == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	if view.Location != "" {
		t.SetTitle(view.Location)
	}
	t.AppendHeader(table.Row{"User", "Requests", "Remaining", "Note"})

	total := 0
	exhausted := 0
	for _, user := range view.Users {
		total += user.Requests
		if user.Remaining == 0 {
			exhausted++
		}
		t.AppendRow(table.Row{
			strconv.FormatInt(user.ID, 10),
			user.Requests,
			user.Remaining,
			user.Note,
		})
	}

	t.AppendFooter(table.Row{
		fmt.Sprintf("%d users", len(view.Users)),
		total,
		fmt.Sprintf("%d exhausted", exhausted),
		fmt.Sprintf("limit %d", view.Limit),
	})

	return f.render(t), nil
}

// FormatReply prints the reply text exactly as the user would receive it.
func (f *TableFormatter) FormatReply(view *ReplyView) (string, error) {
	if view == nil {
		return "", nil
	}
	if !f.Markdown {
		return view.Reply, nil
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"User", "Outcome", "State", "Reply"})
	t.AppendRow(table.Row{strconv.FormatInt(view.UserID, 10), view.Outcome, view.State, view.Reply})
	return f.render(t), nil
}

func (f *TableFormatter) render(t table.Writer) string {
	if f.Markdown {
		return t.RenderMarkdown()
	}
	return t.Render()
}
