// Package registry serves the per-brand register maps. Tables are embedded YAML, loaded once and
// never mutated; every lookup hands out copies.
package registry

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"k8s.io/klog/v2"

	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/statusword"
)

//go:embed brands/*.yaml
var brandFS embed.FS

var (
	ErrUnknownBrand    = errors.New("no register map for brand")
	ErrMappingNotFound = errors.New("register mapping not found")
)

var (
	controlWordNames    = []string{"control_word", "control_word_1"}
	speedReferenceNames = []string{"speed_reference", "frequency_reference", "frequency_command", "speed_setpoint_main"}
)

type brandFile struct {
	Brand       string                     `yaml:"brand"`
	Model       string                     `yaml:"model"`
	Description string                     `yaml:"description"`
	Mappings    []*runtime.RegisterMapping `yaml:"mappings"`
}

// BrandMap is the register table of one brand.
type BrandMap struct {
	Brand       constant.Brand             `json:"brand"`
	Model       string                     `json:"model"`
	Description string                     `json:"description"`
	Mappings    []*runtime.RegisterMapping `json:"mappings"`
}

type Registry struct {
	brands map[constant.Brand]*BrandMap
}

var defaultRegistry *Registry

// Default returns the registry built from the embedded tables.
func Default() *Registry {
	return defaultRegistry
}

func init() {
	sub, err := fs.Sub(brandFS, "brands")
	if err != nil {
		panic(err)
	}
	r, err := Load(sub)
	if err != nil {
		panic(fmt.Sprintf("embedded register maps: %v", err))
	}
	defaultRegistry = r
}

// Load reads every *.yaml file of fsys as a brand table.
func Load(fsys fs.FS) (*Registry, error) {
	names, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, err
	}
	r := &Registry{brands: make(map[constant.Brand]*BrandMap, len(names))}
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		bm, err := parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path.Base(name), err)
		}
		if _, ok := r.brands[bm.Brand]; ok {
			return nil, fmt.Errorf("%s: brand %s defined twice", path.Base(name), bm.Brand)
		}
		r.brands[bm.Brand] = bm
		for address, params := range r.DuplicateAddresses(bm.Brand) {
			klog.V(2).InfoS("Register address shared by several parameters", "brand", bm.Brand, "address", address, "parameters", params)
		}
	}
	return r, nil
}

func parse(data []byte) (*BrandMap, error) {
	var bf brandFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, err
	}
	brand, err := constant.ParseBrand(bf.Brand)
	if err != nil {
		return nil, err
	}
	if errs := validateMappings(bf.Mappings); len(errs) > 0 {
		return nil, errs.ToAggregate()
	}
	profile := statusword.ProfileFor(brand)
	for _, m := range bf.Mappings {
		if m.DataType == constant.STATUS_WORD && len(m.BitDefinitions) == 0 {
			m.IsBitField = true
			m.BitDefinitions = profile.Status.Definitions()
		}
	}
	return &BrandMap{Brand: brand, Model: bf.Model, Description: bf.Description, Mappings: bf.Mappings}, nil
}

func validateMappings(mappings []*runtime.RegisterMapping) field.ErrorList {
	var allErrs field.ErrorList
	seen := make(map[string]struct{}, len(mappings))
	for i, m := range mappings {
		p := field.NewPath("mappings").Index(i)
		if m.ParameterName == "" {
			allErrs = append(allErrs, field.Required(p.Child("parameterName"), ""))
		}
		if _, ok := seen[m.ParameterName]; ok {
			allErrs = append(allErrs, field.Duplicate(p.Child("parameterName"), m.ParameterName))
		}
		seen[m.ParameterName] = struct{}{}
		if m.Count() < constant.DataTypeWord[m.DataType] {
			allErrs = append(allErrs, field.Invalid(p.Child("registerCount"), m.RegisterCount,
				fmt.Sprintf("%s needs %d registers", m.DataType, constant.DataTypeWord[m.DataType])))
		}
		if uint64(m.RegisterAddress)+uint64(m.Count()) > 0x10000 {
			allErrs = append(allErrs, field.Invalid(p.Child("registerAddress"), m.RegisterAddress, "span exceeds the 16-bit register space"))
		}
		if m.MinValue != nil && m.MaxValue != nil && *m.MinValue > *m.MaxValue {
			allErrs = append(allErrs, field.Invalid(p.Child("minValue"), *m.MinValue, "greater than maxValue"))
		}
		for j, def := range m.BitDefinitions {
			if def.Bit > 15 {
				allErrs = append(allErrs, field.Invalid(p.Child("bitDefinitions").Index(j).Child("bit"), def.Bit, "must be 0-15"))
			}
		}
	}
	return allErrs
}

func (r *Registry) brand(brand constant.Brand) (*BrandMap, error) {
	bm, ok := r.brands[brand]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBrand, brand)
	}
	return bm, nil
}

func cp(m *runtime.RegisterMapping) *runtime.RegisterMapping {
	c := *m
	if m.BitDefinitions != nil {
		c.BitDefinitions = append([]runtime.BitDefinition(nil), m.BitDefinitions...)
	}
	if m.MinValue != nil {
		v := *m.MinValue
		c.MinValue = &v
	}
	if m.MaxValue != nil {
		v := *m.MaxValue
		c.MaxValue = &v
	}
	return &c
}

func (r *Registry) filter(brand constant.Brand, keep func(*runtime.RegisterMapping) bool) ([]*runtime.RegisterMapping, error) {
	bm, err := r.brand(brand)
	if err != nil {
		return nil, err
	}
	out := make([]*runtime.RegisterMapping, 0, len(bm.Mappings))
	for _, m := range bm.Mappings {
		if keep == nil || keep(m) {
			out = append(out, cp(m))
		}
	}
	return out, nil
}

// Brands lists the brands with a table, in enum order.
func (r *Registry) Brands() []constant.Brand {
	brands := make([]constant.Brand, 0, len(r.brands))
	for b := range r.brands {
		brands = append(brands, b)
	}
	sort.Slice(brands, func(i, j int) bool { return brands[i] < brands[j] })
	return brands
}

// Info returns the brand table header and a copy of its mappings.
func (r *Registry) Info(brand constant.Brand) (*BrandMap, error) {
	bm, err := r.brand(brand)
	if err != nil {
		return nil, err
	}
	mappings, _ := r.MappingsForBrand(brand)
	return &BrandMap{Brand: bm.Brand, Model: bm.Model, Description: bm.Description, Mappings: mappings}, nil
}

// MappingsForBrand returns the brand table in declaration order.
func (r *Registry) MappingsForBrand(brand constant.Brand) ([]*runtime.RegisterMapping, error) {
	return r.filter(brand, nil)
}

func (r *Registry) CriticalMappings(brand constant.Brand) ([]*runtime.RegisterMapping, error) {
	return r.filter(brand, func(m *runtime.RegisterMapping) bool { return m.IsCritical })
}

func (r *Registry) MappingsByCategory(brand constant.Brand, category constant.Category) ([]*runtime.RegisterMapping, error) {
	return r.filter(brand, func(m *runtime.RegisterMapping) bool { return m.Category == category })
}

func (r *Registry) WritableMappings(brand constant.Brand) ([]*runtime.RegisterMapping, error) {
	return r.filter(brand, func(m *runtime.RegisterMapping) bool { return m.IsWritable() })
}

// ReadableMappings drops write-only registers.
func (r *Registry) ReadableMappings(brand constant.Brand) ([]*runtime.RegisterMapping, error) {
	return r.filter(brand, func(m *runtime.RegisterMapping) bool { return m.IsReadable() })
}

// Mapping looks up one parameter by name.
func (r *Registry) Mapping(brand constant.Brand, name string) (*runtime.RegisterMapping, error) {
	return r.first(brand, name)
}

// ControlWordMapping returns the first mapping named control_word or control_word_1.
func (r *Registry) ControlWordMapping(brand constant.Brand) (*runtime.RegisterMapping, error) {
	return r.first(brand, controlWordNames...)
}

// SpeedReferenceMapping returns the first of speed_reference, frequency_reference,
// frequency_command and speed_setpoint_main.
func (r *Registry) SpeedReferenceMapping(brand constant.Brand) (*runtime.RegisterMapping, error) {
	return r.first(brand, speedReferenceNames...)
}

func (r *Registry) first(brand constant.Brand, names ...string) (*runtime.RegisterMapping, error) {
	bm, err := r.brand(brand)
	if err != nil {
		return nil, err
	}
	for _, m := range bm.Mappings {
		for _, name := range names {
			if m.ParameterName == name {
				return cp(m), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s has none of %v", ErrMappingNotFound, brand, names)
}

// DuplicateAddresses reports addresses that more than one parameter of the same function code
// claims, keyed by address.
func (r *Registry) DuplicateAddresses(brand constant.Brand) map[uint32][]string {
	bm, ok := r.brands[brand]
	if !ok {
		return nil
	}
	type key struct {
		address uint32
		code    uint8
	}
	claims := make(map[key][]string)
	for _, m := range bm.Mappings {
		k := key{m.RegisterAddress, m.Code()}
		claims[k] = append(claims[k], m.ParameterName)
	}
	dups := make(map[uint32][]string)
	for k, names := range claims {
		if len(names) > 1 {
			dups[k.address] = append(dups[k.address], names...)
		}
	}
	return dups
}
