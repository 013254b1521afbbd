package sequencer

import (
	"sort"
	"strings"

	"github.com/smallbiznis/airtax/internal/config"
	"github.com/smallbiznis/airtax/internal/currency"
	evaluationdomain "github.com/smallbiznis/airtax/internal/evaluation/domain"
)

type Mode string

const (
	ModeLegacy Mode = config.OrderingLegacy
	ModeModern Mode = config.OrderingModern
)

// Table is the ordering configuration of the nation that drives display.
type Table struct {
	Mode            Mode
	FirstNation     string
	Orders          map[string][]string
	CarrierFeeCodes []string
	SegmentFeeCodes []string
	TicketBoxes     int
}

// TableFor builds the table of the driving nation. Every nation's code order
// is carried so visited nations can be ranked in modern mode.
func TableFor(cfg config.TaxConfig, nation string) Table {
	t := Table{
		Mode:            ModeLegacy,
		FirstNation:     config.FirstNationAgent,
		Orders:          make(map[string][]string, len(cfg.Nations)),
		CarrierFeeCodes: cfg.CarrierFeeCodes,
		SegmentFeeCodes: cfg.SegmentFeeCodes,
	}
	for code, n := range cfg.Nations {
		t.Orders[code] = n.TaxCodeOrder
	}
	if n, ok := cfg.Nation(nation); ok {
		if n.Ordering != "" {
			t.Mode = Mode(n.Ordering)
		}
		if n.FirstNation != "" {
			t.FirstNation = n.FirstNation
		}
		t.TicketBoxes = n.TicketBoxes
	}
	return t
}

type Sequencer struct{}

func New() *Sequencer {
	return &Sequencer{}
}

// Order returns items in display order. The input slice is not modified and
// ordering an already ordered slice returns it unchanged.
func (s *Sequencer) Order(items []evaluationdomain.TaxLineItem, t Table, agentNation, originNation string, visited []string) []evaluationdomain.TaxLineItem {
	out := append([]evaluationdomain.TaxLineItem(nil), items...)
	first := strings.ToUpper(agentNation)
	if t.FirstNation == config.FirstNationOrigin || first == "" {
		first = strings.ToUpper(originNation)
	}

	if t.Mode != ModeModern {
		rank := ranking(t.Orders[first])
		sort.SliceStable(out, func(i, j int) bool {
			return rank(out[i].Code) < rank(out[j].Code)
		})
		return out
	}

	group, others := modernGroups(t, first, visited)
	ranks := make(map[string]func(string) int, len(t.Orders))
	for nation, order := range t.Orders {
		ranks[strings.ToUpper(nation)] = ranking(order)
	}
	sort.SliceStable(out, func(i, j int) bool {
		gi, gj := group(out[i]), group(out[j])
		if gi != gj {
			return gi < gj
		}
		if gi != 0 && (gi < 2 || gi >= others) {
			return false
		}
		rank, ok := ranks[strings.ToUpper(out[i].Nation)]
		if !ok {
			return false
		}
		return rank(out[i].Code) < rank(out[j].Code)
	})
	return out
}

// modernGroups places the first nation, then carrier fees, then the visited
// nations in visit order, then anything else, and segment fees last. Only the
// first nation and visited nation groups are ranked by code order; the
// returned index is the first group that is not.
func modernGroups(t Table, first string, visited []string) (func(evaluationdomain.TaxLineItem) int, int) {
	visitOrder := make(map[string]int, len(visited))
	pos := 0
	for _, n := range visited {
		n = strings.ToUpper(n)
		if n == first {
			continue
		}
		if _, ok := visitOrder[n]; !ok {
			visitOrder[n] = pos
			pos++
		}
	}
	others := 2 + len(visitOrder)
	group := func(item evaluationdomain.TaxLineItem) int {
		switch {
		case containsFold(t.SegmentFeeCodes, item.Code):
			return others + 1
		case strings.EqualFold(item.Nation, first) && !containsFold(t.CarrierFeeCodes, item.Code):
			return 0
		case containsFold(t.CarrierFeeCodes, item.Code):
			return 1
		}
		if p, ok := visitOrder[strings.ToUpper(item.Nation)]; ok {
			return 2 + p
		}
		return others
	}
	return group, others
}

// ranking maps a code to its position in order; unlisted codes share the
// rank after the last listed one so a stable sort keeps their input order.
func ranking(order []string) func(code string) int {
	idx := make(map[string]int, len(order))
	for i, code := range order {
		code = strings.ToUpper(code)
		if _, ok := idx[code]; !ok {
			idx[code] = i
		}
	}
	return func(code string) int {
		if i, ok := idx[strings.ToUpper(code)]; ok {
			return i
		}
		return len(order)
	}
}

// Compress flags the overflow of the ticket boxes as rolled up. Items shown
// separately or with a near zero amount never take a box. The last box holds
// the roll-up.
func (s *Sequencer) Compress(items []evaluationdomain.TaxLineItem, boxes int) []evaluationdomain.TaxLineItem {
	out := append([]evaluationdomain.TaxLineItem(nil), items...)
	if boxes <= 0 || len(out) <= boxes {
		return out
	}
	var eligible []int
	for i := range out {
		if out[i].ShowSeparate || out[i].Amount.Abs().LessThan(currency.Epsilon) {
			continue
		}
		eligible = append(eligible, i)
	}
	if len(eligible) <= boxes {
		return out
	}
	for _, i := range eligible[boxes-1:] {
		out[i].RolledUp = true
	}
	return out
}

// Bucket splits items into the fare and ancillary fee buckets, keeping order.
func (s *Sequencer) Bucket(items []evaluationdomain.TaxLineItem) (fare, ancillary []evaluationdomain.TaxLineItem) {
	fare = make([]evaluationdomain.TaxLineItem, 0, len(items))
	for _, item := range items {
		if item.Ancillary {
			ancillary = append(ancillary, item)
			continue
		}
		fare = append(fare, item)
	}
	return fare, ancillary
}

// Flag marks carrier and segment fee items from the table.
func (s *Sequencer) Flag(item evaluationdomain.TaxLineItem, t Table) evaluationdomain.TaxLineItem {
	item.CarrierFee = containsFold(t.CarrierFeeCodes, item.Code)
	item.SegmentFee = containsFold(t.SegmentFeeCodes, item.Code)
	return item
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
