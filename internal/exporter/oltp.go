package exporter

import (
	"strings"

	"github.com/VladMinzatu/zkvm-profiler/internal/profiler"
	v1 "go.opentelemetry.io/proto/otlp/common/v1"
	profilespb "go.opentelemetry.io/proto/otlp/profiles/v1development"
	resourceV1 "go.opentelemetry.io/proto/otlp/resource/v1"
)

type NowFunc func() uint64 // produces unix nsec

// AddressTable maps a frame name back to its function's entry address.
type AddressTable interface {
	StartOf(name string) (uint64, bool)
}

type OltpInfo struct {
	ServiceName string
	Fingerprint string
	SampleRate  uint64
}

func BuildOltpProfile(samples []profiler.Sample, addrs AddressTable, info OltpInfo, now NowFunc) *profilespb.ProfilesData {
	nowNsec := now()
	stringTable := []string{""}
	mappingTable := []*profilespb.Mapping{{}}
	locationTable := []*profilespb.Location{{}}
	functionTable := []*profilespb.Function{{}}
	stackTable := []*profilespb.Stack{{}}

	defaultMappingIdx := 0
	locByName := map[string]int32{}
	stackByKey := map[string]int{}
	var profileSamples []*profilespb.Sample

	sampleType := &profilespb.ValueType{
		TypeStrindex: strIndex(&stringTable, "samples"),
		UnitStrindex: strIndex(&stringTable, "count"),
	}

	location := func(name string) int32 {
		if idx, ok := locByName[name]; ok {
			return idx
		}
		funcNameIdx := strIndex(&stringTable, name)
		functionTable = append(functionTable, &profilespb.Function{
			NameStrindex:       funcNameIdx,
			SystemNameStrindex: funcNameIdx,
		})
		fnIdx := int32(len(functionTable) - 1)

		var addr uint64
		if addrs != nil {
			addr, _ = addrs.StartOf(name)
		}
		locationTable = append(locationTable, &profilespb.Location{
			Address:      addr,
			MappingIndex: int32(defaultMappingIdx),
			Lines: []*profilespb.Line{
				{
					FunctionIndex: fnIdx,
					Line:          0,
				},
			},
		})
		idx := int32(len(locationTable) - 1)
		locByName[name] = idx
		return idx
	}

	for _, s := range samples {
		if len(s.Stack) == 0 {
			continue
		}
		key := strings.Join(s.Stack, "\x00")
		if i, ok := stackByKey[key]; ok {
			profileSamples[i].Values[0]++
			continue
		}

		// OTLP stacks are leaf first
		locIndices := make([]int32, 0, len(s.Stack))
		for i := len(s.Stack) - 1; i >= 0; i-- {
			locIndices = append(locIndices, location(s.Stack[i]))
		}
		stackTable = append(stackTable, &profilespb.Stack{LocationIndices: locIndices})

		stackByKey[key] = len(profileSamples)
		profileSamples = append(profileSamples, &profilespb.Sample{
			StackIndex:       int32(len(stackTable) - 1),
			Values:           []int64{1},
			AttributeIndices: []int32{},
			LinkIndex:        0,
		})
	}

	profile := &profilespb.Profile{
		TimeUnixNano: nowNsec,
		DurationNano: uint64(len(samples)) * info.SampleRate * 1000,
		SampleType:   sampleType,
		Samples:      profileSamples,
	}

	resource := &resourceV1.Resource{
		Attributes: []*v1.KeyValue{
			stringAttr("service.name", info.ServiceName),
			stringAttr("process.executable.build_id.xxh3", info.Fingerprint),
		},
	}
	resourceProfiles := &profilespb.ResourceProfiles{
		Resource: resource,
		ScopeProfiles: []*profilespb.ScopeProfiles{
			{
				Scope: &v1.InstrumentationScope{
					Name:    "zkvm-profiler",
					Version: "v1",
				},
				Profiles: []*profilespb.Profile{profile},
			},
		},
	}

	dictionary := &profilespb.ProfilesDictionary{
		MappingTable:  mappingTable,
		LocationTable: locationTable,
		FunctionTable: functionTable,
		StackTable:    stackTable,
		StringTable:   stringTable,
	}

	return &profilespb.ProfilesData{
		ResourceProfiles: []*profilespb.ResourceProfiles{resourceProfiles},
		Dictionary:       dictionary,
	}
}

func stringAttr(key, value string) *v1.KeyValue {
	return &v1.KeyValue{
		Key:   key,
		Value: &v1.AnyValue{Value: &v1.AnyValue_StringValue{StringValue: value}},
	}
}

func strIndex(table *[]string, s string) int32 {
	for i, v := range *table {
		if v == s {
			return int32(i)
		}
	}
	*table = append(*table, s)
	return int32(len(*table) - 1)
}
