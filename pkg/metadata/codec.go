// ABOUTME: Parse and serialize the sectioned key/value metadata format
// ABOUTME: Keys and sections are matched case-insensitively, unknown keys survive a rewrite

package metadata

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-ini/ini"

	"github.com/nainya/assetstore/pkg/layout"
)

// Known keys, lowercase as written to disk
const (
	keyType = "type"

	keyLatestVersion    = "latestversion"
	keyVersionsToKeep   = "versionstokeep"
	keyLocked           = "locked"
	keyLastCheckoutTime = "lastcheckouttime"
	keyLastCheckoutUser = "lastcheckoutuser"
	keyLastCheckinTime  = "lastcheckintime"
	keyLastCheckinUser  = "lastcheckinuser"

	keyCheckedOutFrom = "checkedoutfrom"
	keyCheckoutTime   = "checkouttime"
	keyVersion        = "version"
	keyLockedByMe     = "lockedbyme"
	keyCheckoutUser   = "checkoutuser"
	keyRestoredFrom   = "restoredfrom"
)

var loadOptions = ini.LoadOptions{
	Insensitive:             true,
	IgnoreInlineComment:     true,
	IgnoreContinuation:      true,
	PreserveSurroundedQuote: true,
}

// ParseNodeInfo decodes the content of a .nodeinfo file
func ParseNodeInfo(data []byte) (*NodeInfo, error) {
	f, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return nil, &MalformedMetadataError{Err: err}
	}

	versioning, err := f.GetSection(SectionVersioning)
	if err != nil {
		return nil, &MalformedMetadataError{Section: SectionVersioning, Err: errMissing}
	}

	info := &NodeInfo{Comments: make(map[int]string)}
	r := sectionReader{sec: versioning, name: SectionVersioning}

	info.LatestVersion = r.requiredInt(keyLatestVersion)
	info.VersionsToKeep = r.requiredInt(keyVersionsToKeep)
	info.Locked = r.requiredBool(keyLocked)
	info.LastCheckoutUser = r.optional(keyLastCheckoutUser)
	info.LastCheckoutTime = r.optionalTime(keyLastCheckoutTime)
	info.LastCheckinUser = r.optional(keyLastCheckinUser)
	info.LastCheckinTime = r.optionalTime(keyLastCheckinTime)
	if r.err != nil {
		return nil, r.err
	}

	if node, err := f.GetSection(SectionNode); err == nil && node.HasKey(keyType) {
		info.Type = node.Key(keyType).String()
	}

	consumed := map[string][]string{
		strings.ToLower(SectionNode): {keyType},
		strings.ToLower(SectionVersioning): {
			keyLatestVersion, keyVersionsToKeep, keyLocked,
			keyLastCheckoutTime, keyLastCheckoutUser, keyLastCheckinTime, keyLastCheckinUser,
		},
	}

	if comments, err := f.GetSection(SectionComments); err == nil {
		for _, key := range comments.Keys() {
			if v, ok := layout.ParseVersionFolder(key.Name()); ok {
				info.Comments[v] = key.Value()
				consumed[strings.ToLower(SectionComments)] = append(consumed[strings.ToLower(SectionComments)], key.Name())
			}
		}
	}

	info.Extra = collectExtra(f, consumed)
	return info, nil
}

// Marshal serializes node info back to the on-disk format
func (n *NodeInfo) Marshal() ([]byte, error) {
	f := ini.Empty(ini.LoadOptions{IgnoreInlineComment: true})

	node, err := f.NewSection(SectionNode)
	if err != nil {
		return nil, err
	}
	node.NewKey(keyType, n.Type)

	versioning, err := f.NewSection(SectionVersioning)
	if err != nil {
		return nil, err
	}
	versioning.NewKey(keyLatestVersion, strconv.Itoa(n.LatestVersion))
	versioning.NewKey(keyVersionsToKeep, strconv.Itoa(n.VersionsToKeep))
	versioning.NewKey(keyLocked, formatBool(n.Locked))
	versioning.NewKey(keyLastCheckoutTime, FormatTime(n.LastCheckoutTime))
	versioning.NewKey(keyLastCheckoutUser, n.LastCheckoutUser)
	versioning.NewKey(keyLastCheckinTime, FormatTime(n.LastCheckinTime))
	versioning.NewKey(keyLastCheckinUser, n.LastCheckinUser)

	comments, err := f.NewSection(SectionComments)
	if err != nil {
		return nil, err
	}
	for _, v := range n.CommentVersions() {
		comments.NewKey(layout.VersionFolderName(v), n.Comments[v])
	}

	if err := writeExtra(f, n.Extra); err != nil {
		return nil, err
	}
	return encode(f)
}

// ParseCheckoutInfo decodes the content of a .checkoutinfo file
func ParseCheckoutInfo(data []byte) (*CheckoutInfo, error) {
	f, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return nil, &MalformedMetadataError{Err: err}
	}

	checkout, err := f.GetSection(SectionCheckout)
	if err != nil {
		return nil, &MalformedMetadataError{Section: SectionCheckout, Err: errMissing}
	}

	r := sectionReader{sec: checkout, name: SectionCheckout}
	info := &CheckoutInfo{RestoredFrom: -1}
	info.CheckedOutFrom = r.required(keyCheckedOutFrom)
	info.CheckoutTime = r.requiredTime(keyCheckoutTime)
	info.Version = r.requiredInt(keyVersion)
	info.LockedByMe = r.requiredBool(keyLockedByMe)
	info.CheckoutUser = r.optional(keyCheckoutUser)
	if checkout.HasKey(keyRestoredFrom) {
		info.RestoredFrom = r.requiredInt(keyRestoredFrom)
	}
	if r.err != nil {
		return nil, r.err
	}

	info.Extra = collectExtra(f, map[string][]string{
		strings.ToLower(SectionCheckout): {
			keyCheckedOutFrom, keyCheckoutTime, keyVersion, keyLockedByMe, keyCheckoutUser, keyRestoredFrom,
		},
	})
	return info, nil
}

// Marshal serializes checkout info back to the on-disk format
func (c *CheckoutInfo) Marshal() ([]byte, error) {
	f := ini.Empty(ini.LoadOptions{IgnoreInlineComment: true})

	checkout, err := f.NewSection(SectionCheckout)
	if err != nil {
		return nil, err
	}
	checkout.NewKey(keyCheckedOutFrom, c.CheckedOutFrom)
	checkout.NewKey(keyCheckoutTime, FormatTime(c.CheckoutTime))
	checkout.NewKey(keyVersion, strconv.Itoa(c.Version))
	checkout.NewKey(keyLockedByMe, formatBool(c.LockedByMe))
	if c.CheckoutUser != "" {
		checkout.NewKey(keyCheckoutUser, c.CheckoutUser)
	}
	if c.RestoredFrom >= 0 {
		checkout.NewKey(keyRestoredFrom, strconv.Itoa(c.RestoredFrom))
	}

	if err := writeExtra(f, c.Extra); err != nil {
		return nil, err
	}
	return encode(f)
}

// FormatTime renders a timestamp the way metadata files store it.
// The zero time renders as an empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(time.Local).Format(TimeLayout)
}

// ParseTime parses a metadata timestamp in local time
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(TimeLayout, s, time.Local)
}

// sectionReader accumulates the first decoding error of a section
type sectionReader struct {
	sec  *ini.Section
	name string
	err  error
}

func (r *sectionReader) fail(key string, err error) {
	if r.err == nil {
		r.err = &MalformedMetadataError{Section: r.name, Key: key, Err: err}
	}
}

func (r *sectionReader) required(key string) string {
	if !r.sec.HasKey(key) {
		r.fail(key, errMissing)
		return ""
	}
	return r.sec.Key(key).String()
}

func (r *sectionReader) optional(key string) string {
	if !r.sec.HasKey(key) {
		return ""
	}
	return r.sec.Key(key).String()
}

func (r *sectionReader) requiredInt(key string) int {
	raw := r.required(key)
	if r.err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		r.fail(key, err)
	}
	return n
}

func (r *sectionReader) requiredBool(key string) bool {
	raw := r.required(key)
	if r.err != nil {
		return false
	}
	b, err := parseBool(raw)
	if err != nil {
		r.fail(key, err)
	}
	return b
}

func (r *sectionReader) requiredTime(key string) time.Time {
	raw := r.required(key)
	if r.err != nil {
		return time.Time{}
	}
	t, err := ParseTime(strings.TrimSpace(raw))
	if err != nil {
		r.fail(key, err)
	}
	return t
}

func (r *sectionReader) optionalTime(key string) time.Time {
	t, err := ParseTime(strings.TrimSpace(r.optional(key)))
	if err != nil {
		r.fail(key, err)
	}
	return t
}

// parseBool accepts the spellings Python's ConfigParser accepts
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "yes", "true", "on":
		return true, nil
	case "0", "no", "false", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func collectExtra(f *ini.File, consumed map[string][]string) map[string]map[string]string {
	var extra map[string]map[string]string
	for _, sec := range f.Sections() {
		name := strings.ToLower(sec.Name())
		known := consumed[name]
		for _, key := range sec.Keys() {
			if contains(known, key.Name()) {
				continue
			}
			if extra == nil {
				extra = make(map[string]map[string]string)
			}
			if extra[name] == nil {
				extra[name] = make(map[string]string)
			}
			extra[name][key.Name()] = key.Value()
		}
	}
	return extra
}

func writeExtra(f *ini.File, extra map[string]map[string]string) error {
	for _, section := range sortedKeys(extra) {
		name := section
		if strings.EqualFold(name, ini.DefaultSection) {
			name = ini.DefaultSection
		}

		var sec *ini.Section
		for _, existing := range f.Sections() {
			if strings.EqualFold(existing.Name(), name) {
				sec = existing
				break
			}
		}
		if sec == nil {
			var err error
			if sec, err = f.NewSection(name); err != nil {
				return err
			}
		}

		keys := extra[section]
		for _, k := range sortedKeys(keys) {
			if _, err := sec.NewKey(k, keys[k]); err != nil {
				return err
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func encode(f *ini.File) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
