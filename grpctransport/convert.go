package grpctransport

import (
	"time"

	"github.com/dataconnect-io/dataconnect/backplane"
	"github.com/dataconnect-io/dataconnect/grpctransport/wire"
	"github.com/dataconnect-io/dataconnect/registry"
)

func wireRoleFromDomain(r registry.Role) wire.Role {
	if r == registry.RoleConsumer {
		return wire.RoleConsumer
	}
	return wire.RoleProducer
}

func domainRoleFromWire(r wire.Role) registry.Role {
	if r == wire.RoleConsumer {
		return registry.RoleConsumer
	}
	return registry.RoleProducer
}

func wireQualityFromDomain(q backplane.Quality) wire.Quality {
	switch q {
	case backplane.QualityUncertain:
		return wire.QualityUncertain
	case backplane.QualityBad:
		return wire.QualityBad
	default:
		return wire.QualityGood
	}
}

func domainQualityFromWire(q wire.Quality) backplane.Quality {
	switch q {
	case wire.QualityUncertain:
		return backplane.QualityUncertain
	case wire.QualityBad:
		return backplane.QualityBad
	default:
		return backplane.QualityGood
	}
}

func wireValueFromDomain(v backplane.TagValue) *wire.TagValue {
	out := &wire.TagValue{
		Handle:    v.Handle,
		Timestamp: v.Timestamp.UnixMilli(),
		Quality:   wireQualityFromDomain(v.Quality),
		Owner:     v.Owner,
	}
	switch v.Kind {
	case backplane.KindBool:
		out.Kind = wire.KindBool
		out.BoolVal = v.Bool
	case backplane.KindInt64:
		out.Kind = wire.KindInt64
		out.Int64Val = v.Int64
	case backplane.KindDouble:
		out.Kind = wire.KindDouble
		out.DoubleVal = v.Double
	case backplane.KindBytes:
		out.Kind = wire.KindBytes
		out.BytesVal = v.Bytes
	default:
		out.Kind = wire.KindString
		out.StringVal = v.String
	}
	return out
}

func domainValueFromWire(v *wire.TagValue) backplane.TagValue {
	out := backplane.TagValue{
		Handle:    v.Handle,
		Timestamp: time.UnixMilli(v.Timestamp),
		Quality:   domainQualityFromWire(v.Quality),
		Owner:     v.Owner,
	}
	switch v.Kind {
	case wire.KindBool:
		out.Kind = backplane.KindBool
		out.Bool = v.BoolVal
	case wire.KindInt64:
		out.Kind = backplane.KindInt64
		out.Int64 = v.Int64Val
	case wire.KindDouble:
		out.Kind = backplane.KindDouble
		out.Double = v.DoubleVal
	case wire.KindBytes:
		out.Kind = backplane.KindBytes
		out.Bytes = v.BytesVal
	default:
		out.Kind = backplane.KindString
		out.String = v.StringVal
	}
	return out
}
