package runner

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/logrusorgru/aurora"

	"github.com/vltest/vltest/pkg/harness"
	"github.com/vltest/vltest/pkg/task"
)

// PrettyPrinter renders one console line per finished case, in completion
// order. Output goes to the writer it is constructed with, normally the
// output writer's stdout channel so that clients see it live.
type PrettyPrinter struct {
	aurora  aurora.Aurora
	classes map[task.Outcome]aurora.Value
	start   time.Time

	mu    sync.Mutex
	w     io.Writer
	count uint32
}

// NewPrettyPrinter constructs a console printer. Colors are embedded only
// when enabled; disable them when the destination is not a terminal-bound
// stream.
func NewPrettyPrinter(w io.Writer, colors bool) *PrettyPrinter {
	au := aurora.NewAurora(colors)
	return &PrettyPrinter{
		aurora: au,
		classes: map[task.Outcome]aurora.Value{
			task.OutcomeSuccess:  au.BgGreen("PASS").White(),
			task.OutcomeFailure:  au.BgRed("FAIL").White(),
			task.OutcomeSkipped:  au.BgWhite("SKIP").Black(),
			task.OutcomeCanceled: au.BgBrightRed("CANCEL").White(),
			task.OutcomeUnknown:  au.BgBrightRed("UNKNOWN").White(),
		},
		start: time.Now(),
		w:     w,
	}
}

// Append prints the verdict line for one case report.
func (p *PrettyPrinter) Append(rep *harness.Report) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.count
	p.count++

	elapsed := time.Since(p.start)
	if elapsed < 0 {
		elapsed = 0
	}

	class, ok := p.classes[rep.Outcome]
	if !ok {
		class = p.classes[task.OutcomeUnknown]
	}

	fmt.Fprintf(p.w, "%9.4fs %10s %s %s\n",
		float64(elapsed)/float64(time.Second),
		class,
		p.aurora.Index(uint8(idx%15)+1, "<< "+rep.CaseName+" >>"),
		rep.Reason,
	)
}
