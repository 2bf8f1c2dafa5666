package storage

// Logical collection names.  The physical key is built by Manager.Key.
const (
	Tables           = "tables"
	Bills            = "bills"
	BillsArchive     = "bills_archive"
	MenuAvailability = "menu_availability"
	CustomMenuItems  = "custom_menu_items"
	Settings         = "settings"
	Cache            = "cache"
	LastSync         = "last_sync"
	FirstLaunch      = "first_launch"
	ManagerPINSet    = "manager_pin_set"
)

// Defaults for the key namespace.  Bumping DefaultSchemaVersion abandons
// every key written under the previous version.
const (
	DefaultPrefix        = "restopos_"
	DefaultSchemaVersion = "v2"
)

// corruptedSuffix names the side key a corrupted blob is moved to.
const corruptedSuffix = "_corrupted"

// transactional lists the collections ResetApplicationData removes.  Tables,
// custom menu items and settings survive a reset.
var transactional = []string{Bills, BillsArchive, MenuAvailability, LastSync, Cache}

// Key returns the physical store key for a logical collection name.
func (m *Manager) Key(name string) string {
	return m.cfg.Prefix + name + "_" + m.cfg.SchemaVersion
}

// CorruptedKey returns the side key a corrupted value of key is moved to.
func CorruptedKey(key string) string {
	return key + corruptedSuffix
}
