package remote

import (
	"fmt"

	"github.com/golang/glog"
)

// Panel addresses of touch areas and variables.
const (
	AddrTitle  uint16 = 0x1000
	AddrWifi   uint16 = 0x1001
	AddrResult uint16 = 0x1002

	// AddrClientStatus shares the title slot.
	AddrClientStatus = AddrTitle

	AddrRankSlots   uint16 = 0x3000
	RankSlotCount          = 10
	AddrWinnerEntry uint16 = 0x3010
)

// ActionKind selects the handler of an Action.
type ActionKind int

// Action kinds.
const (
	ActionNavigate ActionKind = iota + 1
	ActionDisplay
	ActionSelectRank
	ActionConfirmRanking
	ActionSelectWinner
	ActionQuickWinner
	ActionConfirmFinal
)

var actionKindNames = map[ActionKind]string{
	ActionNavigate:       "navigate",
	ActionDisplay:        "display",
	ActionSelectRank:     "select_rank",
	ActionConfirmRanking: "confirm_ranking",
	ActionSelectWinner:   "select_winner",
	ActionQuickWinner:    "quick_winner",
	ActionConfirmFinal:   "confirm_final",
}

func (k ActionKind) String() string {
	if name, ok := actionKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(k))
}

// Action is what a touch means.
type Action struct {
	Kind    ActionKind
	Tag     string
	Address uint16
	// Page is the target of ActionNavigate.
	Page Page
	// Index is the rank of ActionSelectRank (1-based) or the slot of
	// ActionQuickWinner (0-based).
	Index int
}

// Rule maps an address or an inclusive address range to an action.
type Rule struct {
	First, Last uint16
	Kind        ActionKind
	Tag         string
	Page        Page
	// Base is the Index of the First address.
	Base int
}

// Exact creates a single address rule.
func Exact(addr uint16, kind ActionKind, tag string) Rule {
	return Rule{First: addr, Last: addr, Kind: kind, Tag: tag}
}

// NavigateTo creates a rule switching to a page.
func NavigateTo(addr uint16, page Page, tag string) Rule {
	r := Exact(addr, ActionNavigate, tag)
	r.Page = page
	return r
}

// Range creates a rule for count consecutive addresses starting at first,
// indexed from base.
func Range(first uint16, count int, kind ActionKind, tag string, base int) Rule {
	return Rule{First: first, Last: first + uint16(count-1), Kind: kind, Tag: tag, Base: base}
}

// Match maps addr to an action if the rule covers it.
func (r Rule) Match(addr uint16) (Action, bool) {
	if addr < r.First || addr > r.Last {
		return Action{}, false
	}
	return Action{
		Kind:    r.Kind,
		Tag:     r.Tag,
		Address: addr,
		Page:    r.Page,
		Index:   r.Base + int(addr-r.First),
	}, true
}

// DefaultRules is the layout of the panel firmware, exact addresses
// before ranges.
var DefaultRules = []Rule{
	NavigateTo(0x1010, PageDisplayControl, "open_display_control"),
	NavigateTo(0x1011, PageRankingInput, "open_ranking_input"),
	NavigateTo(0x1012, PageFinalInput, "open_final_input"),
	NavigateTo(0x1013, PageSettings, "open_settings"),
	Exact(0x1020, ActionDisplay, "show_background"),
	Exact(0x1021, ActionDisplay, "hide_background"),
	Exact(0x1022, ActionDisplay, "toggle_fullscreen"),
	Exact(0x1023, ActionDisplay, "switch_monitor"),
	Exact(0x2010, ActionConfirmRanking, "confirm_ranking"),
	Exact(0x1060, ActionSelectWinner, "select_winner"),
	Exact(0x1081, ActionConfirmFinal, "confirm_final"),
	Range(0x2000, RankSlotCount, ActionSelectRank, "select_rank", 1),
	Range(0x1070, 6, ActionQuickWinner, "quick_winner", 0),
}

// ActionFunc handles a routed action.
type ActionFunc func(Action) error

// Dispatcher holds one handler per action kind.
type Dispatcher map[ActionKind]ActionFunc

// Router maps touch addresses to actions.
type Router struct {
	Rules []Rule
}

// NewRouter creates a Router, with DefaultRules if none is given.
func NewRouter(rules ...Rule) *Router {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Router{Rules: rules}
}

// Route returns the action of the first matching rule.
func (r *Router) Route(addr uint16) (Action, bool) {
	for _, rule := range r.Rules {
		if action, ok := rule.Match(addr); ok {
			return action, true
		}
	}
	return Action{}, false
}

// Dispatch routes addr and invokes exactly one handler. Unmapped addresses
// are logged and ignored, reported as ok=false.
func (r *Router) Dispatch(addr uint16, d Dispatcher) (action Action, ok bool, err error) {
	if action, ok = r.Route(addr); !ok {
		glog.Warningf("unmapped touch address 0x%04x", addr)
		return
	}
	fn := d[action.Kind]
	if fn == nil {
		return action, true, fmt.Errorf("no handler for %s at 0x%04x", action.Kind, addr)
	}
	return action, true, fn(action)
}
