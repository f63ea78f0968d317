package topology

// ParityGroup is one XOR parity equation: the parity drive holds the
// combination of the data drives' chunks at each offset.
type ParityGroup struct {
	Id          int
	DataDrives  []DriveId
	ParityDrive DriveId
}

// ParityDomain is one weighted parity equation: the global parity drive
// holds the coefficient-weighted combination of all data drives across the
// domain's groups. A data drive's coefficient is derived from its position
// in DataDrives.
type ParityDomain struct {
	Id                int
	Groups            []*ParityGroup
	DataDrives        []DriveId
	GlobalParityDrive DriveId
}

// Layout is the derived placement rule for one mode: which drives carry
// data, in stripe order, and which parity equations protect them.
//
// In normal mode the parity domains are the physical Dboxes. In HA mode only
// a fixed number of slots per Dbox are data-bearing and every parity domain
// spans three Dboxes: group g's data lives in Dbox g, its XOR parity in Dbox
// g+1 and its weighted parity in Dbox g+2, so losing a whole Dbox never
// takes an equation down with the data it protects.
type Layout struct {
	Mode               Mode
	EligibleDataDrives []DriveId
	ParityDomains      []*ParityDomain

	groupOf        map[DriveId]*ParityGroup
	domainOf       map[DriveId]*ParityDomain
	parityGroupOf  map[DriveId]*ParityGroup  // parity drive -> its group
	parityDomainOf map[DriveId]*ParityDomain // global parity drive -> its domain
	stripeIndexOf  map[DriveId]int
}

func (l *Layout) index() {
	l.groupOf = make(map[DriveId]*ParityGroup)
	l.domainOf = make(map[DriveId]*ParityDomain)
	l.parityGroupOf = make(map[DriveId]*ParityGroup)
	l.parityDomainOf = make(map[DriveId]*ParityDomain)
	l.stripeIndexOf = make(map[DriveId]int)
	for i, id := range l.EligibleDataDrives {
		l.stripeIndexOf[id] = i
	}
	for _, pd := range l.ParityDomains {
		l.parityDomainOf[pd.GlobalParityDrive] = pd
		for _, g := range pd.Groups {
			l.parityGroupOf[g.ParityDrive] = g
			for _, id := range g.DataDrives {
				l.groupOf[id] = g
				l.domainOf[id] = pd
			}
		}
	}
}

// GroupFor returns the parity group covering a data drive, or the group a
// parity drive serves, or nil.
func (l *Layout) GroupFor(id DriveId) *ParityGroup {
	if g, ok := l.groupOf[id]; ok {
		return g
	}
	return l.parityGroupOf[id]
}

// DomainFor returns the parity domain covering a data drive, or the domain a
// global parity drive serves, or nil.
func (l *Layout) DomainFor(id DriveId) *ParityDomain {
	if pd, ok := l.domainOf[id]; ok {
		return pd
	}
	if pd, ok := l.parityDomainOf[id]; ok {
		return pd
	}
	if g, ok := l.parityGroupOf[id]; ok {
		for _, pd := range l.ParityDomains {
			for _, pg := range pd.Groups {
				if pg == g {
					return pd
				}
			}
		}
	}
	return nil
}

// StripeIndex is the drive's position in the round-robin chunk assignment,
// or -1 for drives that carry no data under this layout.
func (l *Layout) StripeIndex(id DriveId) int {
	if i, ok := l.stripeIndexOf[id]; ok {
		return i
	}
	return -1
}

// CoefficientIndex is the data drive's position within its parity domain,
// from which its weighting coefficient is derived. -1 if not covered.
func (pd *ParityDomain) CoefficientIndex(id DriveId) int {
	for i, d := range pd.DataDrives {
		if d == id {
			return i
		}
	}
	return -1
}

func (t *Topology) buildNormalLayout() *Layout {
	l := &Layout{Mode: ModeNormal}
	for _, d := range t.domains {
		pd := &ParityDomain{
			Id:                int(d.Id),
			GlobalParityDrive: d.GlobalParityDrive,
		}
		for _, g := range d.Groups {
			pg := &ParityGroup{
				Id:          g.Id,
				DataDrives:  g.DataDrives,
				ParityDrive: g.ParityDrive,
			}
			pd.Groups = append(pd.Groups, pg)
			pd.DataDrives = append(pd.DataDrives, g.DataDrives...)
		}
		l.ParityDomains = append(l.ParityDomains, pd)
		l.EligibleDataDrives = append(l.EligibleDataDrives, d.DataDrives...)
	}
	l.index()
	return l
}

func (t *Topology) buildHALayout() *Layout {
	l := &Layout{Mode: ModeHA}
	n := t.conf.DomainCount
	k := t.conf.HAEligiblePerDomain
	for g := 0; g < n; g++ {
		data := t.domains[g].DataDrives[:k]
		pd := &ParityDomain{
			Id:                g,
			DataDrives:        data,
			GlobalParityDrive: t.domains[(g+2)%n].GlobalParityDrive,
		}
		pd.Groups = []*ParityGroup{{
			Id:          g,
			DataDrives:  data,
			ParityDrive: t.domains[(g+1)%n].LocalParityDrives[0],
		}}
		l.ParityDomains = append(l.ParityDomains, pd)
		l.EligibleDataDrives = append(l.EligibleDataDrives, data...)
	}
	l.index()
	return l
}

// Layout returns the derived placement rule for the mode, or nil when the
// mode is unavailable on this topology (HA needs at least three domains).
func (t *Topology) Layout(mode Mode) *Layout {
	if mode == ModeHA {
		return t.ha
	}
	return t.normal
}
