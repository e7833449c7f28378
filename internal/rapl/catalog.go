/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package rapl

import (
	"embed"
	"fmt"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v2"
)

//go:embed resources
var resources embed.FS

// RegisterID names a logical register independent of vendor.
type RegisterID string

const (
	PowerUnit    RegisterID = "power_unit"
	PkgEnergy    RegisterID = "pkg_energy"
	CoreEnergy   RegisterID = "core_energy"
	PkgPowerInfo RegisterID = "pkg_power_info"
)

type Field struct {
	Name   string `yaml:"name"`
	Offset uint   `yaml:"offset"`
	Width  uint   `yaml:"width"`
}

// Descriptor is the address and field layout of one register on one vendor.
type Descriptor struct {
	ID      RegisterID
	Address uint64
	Fields  []Field
}

// Field returns the named field of the descriptor.
func (d Descriptor) Field(name string) (field Field, err error) {
	for _, f := range d.Fields {
		if f.Name == name {
			field = f
			return
		}
	}
	err = fmt.Errorf("%w: register %s has no field %q", ErrRegisterParseFailure, d.ID, name)
	return
}

type catalogEntry struct {
	Vendor  string  `yaml:"vendor"`
	ID      string  `yaml:"id"`
	Address uint64  `yaml:"address"`
	Fields  []Field `yaml:"fields"`
}

type catalogFile struct {
	Registers []catalogEntry `yaml:"registers"`
}

type catalogKey struct {
	vendor Vendor
	id     RegisterID
}

// Catalog is the lookup table of register descriptors keyed by vendor and
// logical register.
type Catalog struct {
	descriptors map[catalogKey]Descriptor
	order       map[Vendor][]RegisterID
}

// LoadCatalog parses the register catalog embedded in the binary.
func LoadCatalog() (catalog *Catalog, err error) {
	yamlBytes, err := resources.ReadFile("resources/registers.yaml")
	if err != nil {
		err = fmt.Errorf("failed to read registers.yaml: %v", err)
		return
	}
	catalog, err = ParseCatalog(yamlBytes)
	return
}

// ParseCatalog parses and validates a register catalog in yaml form.
func ParseCatalog(yamlBytes []byte) (catalog *Catalog, err error) {
	var file catalogFile
	err = yaml.UnmarshalStrict(yamlBytes, &file)
	if err != nil {
		err = fmt.Errorf("failed to parse register catalog: %v", err)
		return
	}
	c := &Catalog{
		descriptors: make(map[catalogKey]Descriptor),
		order:       make(map[Vendor][]RegisterID),
	}
	for _, entry := range file.Registers {
		var vendor Vendor
		vendor, err = ParseVendor(entry.Vendor)
		if err != nil {
			return
		}
		id := RegisterID(entry.ID)
		if id == "" {
			err = fmt.Errorf("register at address %#x has no id", entry.Address)
			return
		}
		key := catalogKey{vendor: vendor, id: id}
		if _, ok := c.descriptors[key]; ok {
			err = fmt.Errorf("duplicate register %s for %s", id, vendor)
			return
		}
		if len(entry.Fields) == 0 {
			err = fmt.Errorf("register %s for %s has no fields", id, vendor)
			return
		}
		for _, field := range entry.Fields {
			if field.Width < 1 || field.Width > 64 {
				err = fmt.Errorf("register %s field %s: width %d out of range 1-64", id, field.Name, field.Width)
				return
			}
			if field.Offset+field.Width > 64 {
				err = fmt.Errorf("register %s field %s: offset %d + width %d exceeds 64 bits", id, field.Name, field.Offset, field.Width)
				return
			}
		}
		c.descriptors[key] = Descriptor{ID: id, Address: entry.Address, Fields: entry.Fields}
		c.order[vendor] = append(c.order[vendor], id)
	}
	catalog = c
	return
}

// Lookup returns the descriptor of register id on the given vendor.
func (c *Catalog) Lookup(vendor Vendor, id RegisterID) (desc Descriptor, err error) {
	desc, ok := c.descriptors[catalogKey{vendor: vendor, id: id}]
	if !ok {
		err = fmt.Errorf("%w: register %s on %s", ErrNotSupported, id, vendor)
		return
	}
	desc.Fields = slices.Clone(desc.Fields)
	return
}

// Registers lists the registers known for vendor in catalog order.
func (c *Catalog) Registers(vendor Vendor) []RegisterID {
	return slices.Clone(c.order[vendor])
}
