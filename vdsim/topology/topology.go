package topology

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"
)

var (
	ErrInvalidDrive = errors.New("drive index out of range")
)

type DriveId int
type DomainId int

type Role int

const (
	RoleData Role = iota
	RoleLocalParity
	RoleGlobalParity
	RoleHotSpare
)

func (r Role) String() string {
	switch r {
	case RoleData:
		return "data"
	case RoleLocalParity:
		return "local_parity"
	case RoleGlobalParity:
		return "global_parity"
	case RoleHotSpare:
		return "hot_spare"
	}
	return "unknown"
}

// Mode selects the placement rule. It is fixed before any write and recorded
// per file record.
type Mode int

const (
	ModeNormal Mode = iota
	ModeHA
)

func (m Mode) String() string {
	if m == ModeHA {
		return "ha"
	}
	return "normal"
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "normal":
		return ModeNormal, nil
	case "ha":
		return ModeHA, nil
	}
	return ModeNormal, fmt.Errorf("unknown placement mode %q", s)
}

// Config carries the four topology parameters plus sizing. The canonical
// array is 11 domains x 44 drives: per domain 38 data drives tiled into
// groups of 13/13/12, one local parity drive per group, one global parity
// drive, and two hot spares.
type Config struct {
	DomainCount         int
	DrivesPerDomain     int
	GroupSizes          []int
	SpareCount          int
	DriveSize           int64
	ChunkSize           int
	HAEligiblePerDomain int
}

func DefaultConfig() Config {
	return Config{
		DomainCount:         11,
		DrivesPerDomain:     44,
		GroupSizes:          []int{13, 13, 12},
		SpareCount:          2,
		DriveSize:           1024 * 1024,
		ChunkSize:           4096,
		HAEligiblePerDomain: 2,
	}
}

func (c Config) DataPerDomain() int {
	n := 0
	for _, s := range c.GroupSizes {
		n += s
	}
	return n
}

func (c Config) TotalDrives() int {
	return c.DomainCount * c.DrivesPerDomain
}

func (c Config) validate() error {
	if c.DomainCount < 1 || c.DrivesPerDomain < 1 {
		return fmt.Errorf("need at least one domain and one drive per domain")
	}
	if len(c.GroupSizes) == 0 {
		return fmt.Errorf("need at least one local group per domain")
	}
	for i, s := range c.GroupSizes {
		if s < 1 {
			return fmt.Errorf("group %d has size %d, want >= 1", i, s)
		}
	}
	// data + one local parity per group + one global parity + spares must
	// tile the domain exactly
	occupied := c.DataPerDomain() + len(c.GroupSizes) + 1 + c.SpareCount
	if occupied != c.DrivesPerDomain {
		return fmt.Errorf("domain layout occupies %d slots, domain has %d", occupied, c.DrivesPerDomain)
	}
	if c.ChunkSize <= 0 || c.DriveSize <= 0 || c.DriveSize%int64(c.ChunkSize) != 0 {
		return fmt.Errorf("drive size %d is not a multiple of chunk size %d", c.DriveSize, c.ChunkSize)
	}
	if c.HAEligiblePerDomain < 1 || c.HAEligiblePerDomain > c.DataPerDomain() {
		return fmt.Errorf("ha eligible count %d out of range", c.HAEligiblePerDomain)
	}
	return nil
}

// LocalGroup is a tile of a domain's data drives sharing one XOR parity
// drive.
type LocalGroup struct {
	Id          int // global group index
	Domain      DomainId
	DataDrives  []DriveId
	ParityDrive DriveId
}

// Domain is one Dbox: an ordered run of drives sharing one global parity
// drive and a spare pool.
type Domain struct {
	Id                DomainId
	DataDrives        []DriveId
	Groups            []*LocalGroup
	LocalParityDrives []DriveId
	GlobalParityDrive DriveId
	SpareDrives       []DriveId
}

func (d *Domain) Name() string {
	return fmt.Sprintf("Dbox-%d", d.Id)
}

// Promotion records a hot spare serving in place of a failed drive. The
// failed drive keeps its logical identity; its bytes live on the spare's
// container.
type Promotion struct {
	Spare    DriveId
	ServesAs DriveId
}

// Topology is the immutable domain/group/role assignment, built once by
// initialize. Only the promotion table mutates afterward.
type Topology struct {
	conf    Config
	domains []*Domain
	groups  []*LocalGroup
	roles   []Role
	groupOf []int // global group index per drive, -1 for none

	normal *Layout
	ha     *Layout

	promoMu    sync.RWMutex
	promotions map[DriveId]DriveId // spare -> serves-as
	promotedBy map[DriveId]DriveId // serves-as -> spare
}

func NewTopology(conf Config) (*Topology, error) {
	if err := conf.validate(); err != nil {
		return nil, fmt.Errorf("invalid topology config: %v", err)
	}

	t := &Topology{
		conf:       conf,
		roles:      make([]Role, conf.TotalDrives()),
		groupOf:    make([]int, conf.TotalDrives()),
		promotions: make(map[DriveId]DriveId),
		promotedBy: make(map[DriveId]DriveId),
	}
	for i := range t.groupOf {
		t.groupOf[i] = -1
	}

	dataPerDomain := conf.DataPerDomain()
	for dom := 0; dom < conf.DomainCount; dom++ {
		base := DriveId(dom * conf.DrivesPerDomain)
		d := &Domain{Id: DomainId(dom)}

		for i := 0; i < dataPerDomain; i++ {
			d.DataDrives = append(d.DataDrives, base+DriveId(i))
		}
		for i := 0; i < len(conf.GroupSizes); i++ {
			id := base + DriveId(dataPerDomain+i)
			d.LocalParityDrives = append(d.LocalParityDrives, id)
			t.roles[id] = RoleLocalParity
		}
		d.GlobalParityDrive = base + DriveId(dataPerDomain+len(conf.GroupSizes))
		t.roles[d.GlobalParityDrive] = RoleGlobalParity
		for i := 0; i < conf.SpareCount; i++ {
			id := base + DriveId(dataPerDomain+len(conf.GroupSizes)+1+i)
			d.SpareDrives = append(d.SpareDrives, id)
			t.roles[id] = RoleHotSpare
		}

		next := 0
		for gi, size := range conf.GroupSizes {
			g := &LocalGroup{
				Id:          len(t.groups),
				Domain:      d.Id,
				DataDrives:  d.DataDrives[next : next+size],
				ParityDrive: d.LocalParityDrives[gi],
			}
			next += size
			for _, id := range g.DataDrives {
				t.groupOf[id] = g.Id
			}
			t.groupOf[g.ParityDrive] = g.Id
			d.Groups = append(d.Groups, g)
			t.groups = append(t.groups, g)
		}

		t.domains = append(t.domains, d)
	}

	t.normal = t.buildNormalLayout()
	if conf.DomainCount >= 3 {
		t.ha = t.buildHALayout()
	}

	glog.V(1).Infof("topology: %d domains x %d drives, %d data drives, %d groups",
		conf.DomainCount, conf.DrivesPerDomain, conf.DomainCount*dataPerDomain, len(t.groups))
	return t, nil
}

func (t *Topology) Conf() Config {
	return t.conf
}

func (t *Topology) checkDrive(id DriveId) error {
	if id < 0 || int(id) >= len(t.roles) {
		return fmt.Errorf("%w: %d of %d", ErrInvalidDrive, id, len(t.roles))
	}
	return nil
}

// RoleOf reports the role a drive currently serves, reflecting promotions.
func (t *Topology) RoleOf(id DriveId) (Role, error) {
	if err := t.checkDrive(id); err != nil {
		return RoleData, err
	}
	t.promoMu.RLock()
	servesAs, promoted := t.promotions[id]
	t.promoMu.RUnlock()
	if promoted {
		return t.roles[servesAs], nil
	}
	return t.roles[id], nil
}

// GroupOf returns the local group a drive belongs to. Global parity and
// unpromoted spare drives belong to no group.
func (t *Topology) GroupOf(id DriveId) (*LocalGroup, error) {
	if err := t.checkDrive(id); err != nil {
		return nil, err
	}
	t.promoMu.RLock()
	servesAs, promoted := t.promotions[id]
	t.promoMu.RUnlock()
	if promoted {
		id = servesAs
	}
	if gi := t.groupOf[id]; gi >= 0 {
		return t.groups[gi], nil
	}
	return nil, nil
}

func (t *Topology) DrivesInGroup(groupId int) []DriveId {
	if groupId < 0 || groupId >= len(t.groups) {
		return nil
	}
	return t.groups[groupId].DataDrives
}

func (t *Topology) Groups() []*LocalGroup {
	return t.groups
}

func (t *Topology) Domains() []*Domain {
	return t.domains
}

func (t *Topology) DomainOf(id DriveId) (*Domain, error) {
	if err := t.checkDrive(id); err != nil {
		return nil, err
	}
	return t.domains[int(id)/t.conf.DrivesPerDomain], nil
}

// DataCapacityBytes is the capacity of the drives eligible to carry data
// under the given mode.
func (t *Topology) DataCapacityBytes(mode Mode) int64 {
	layout := t.Layout(mode)
	if layout == nil {
		return 0
	}
	return int64(len(layout.EligibleDataDrives)) * t.conf.DriveSize
}

// OverheadRatio is parity bytes over total array bytes, a pure function of
// topology and mode.
func (t *Topology) OverheadRatio(mode Mode) float64 {
	layout := t.Layout(mode)
	if layout == nil {
		return 0
	}
	parityDrives := 0
	for _, pd := range layout.ParityDomains {
		parityDrives++ // the global parity drive
		parityDrives += len(pd.Groups)
	}
	return float64(parityDrives) / float64(t.conf.TotalDrives())
}

// PromoteSpare records that spare now serves as the failed drive target.
func (t *Topology) PromoteSpare(spare, target DriveId) error {
	if err := t.checkDrive(spare); err != nil {
		return err
	}
	if err := t.checkDrive(target); err != nil {
		return err
	}
	if t.roles[spare] != RoleHotSpare {
		return fmt.Errorf("drive %d has role %v, not a hot spare", spare, t.roles[spare])
	}
	spareDomain := int(spare) / t.conf.DrivesPerDomain
	targetDomain := int(target) / t.conf.DrivesPerDomain
	if spareDomain != targetDomain {
		return fmt.Errorf("spare %d (domain %d) cannot serve drive %d (domain %d)", spare, spareDomain, target, targetDomain)
	}

	t.promoMu.Lock()
	defer t.promoMu.Unlock()
	if servesAs, used := t.promotions[spare]; used {
		return fmt.Errorf("spare %d already serves as drive %d", spare, servesAs)
	}
	if by, replaced := t.promotedBy[target]; replaced {
		return fmt.Errorf("drive %d is already served by spare %d", target, by)
	}
	t.promotions[spare] = target
	t.promotedBy[target] = spare
	glog.V(0).Infof("promoted spare %d to serve as drive %d", spare, target)
	return nil
}

// FindUnusedSpare picks an idle spare in the drive's domain.
func (t *Topology) FindUnusedSpare(target DriveId) (DriveId, bool) {
	d, err := t.DomainOf(target)
	if err != nil {
		return 0, false
	}
	t.promoMu.RLock()
	defer t.promoMu.RUnlock()
	for _, s := range d.SpareDrives {
		if _, used := t.promotions[s]; !used {
			return s, true
		}
	}
	return 0, false
}

// Resolve maps a logical drive to the container actually holding its bytes,
// following promotion records.
func (t *Topology) Resolve(id DriveId) DriveId {
	t.promoMu.RLock()
	defer t.promoMu.RUnlock()
	if spare, promoted := t.promotedBy[id]; promoted {
		return spare
	}
	return id
}

// AssumedIdentity reports the drive a promoted spare serves as.
func (t *Topology) AssumedIdentity(spare DriveId) (DriveId, bool) {
	t.promoMu.RLock()
	defer t.promoMu.RUnlock()
	servesAs, promoted := t.promotions[spare]
	return servesAs, promoted
}

// Promotions returns the identity reassignment records in effect.
func (t *Topology) Promotions() []Promotion {
	t.promoMu.RLock()
	defer t.promoMu.RUnlock()
	var out []Promotion
	for spare, servesAs := range t.promotions {
		out = append(out, Promotion{Spare: spare, ServesAs: servesAs})
	}
	return out
}
