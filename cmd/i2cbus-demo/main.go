// Command i2cbus-demo wires a simulated I2C bus to the teacher's pub/sub
// bus: it drives one BusWorker loop against host-simulated peripherals and
// republishes every discovered device's status and decoded poll samples as
// retained messages, the way a real board's main.go republishes HAL
// capability state.
package main

import (
	"context"
	"log"
	"sync"
	"time"

	"i2cbus-core/bus"
	"i2cbus-core/i2cbus"
	"i2cbus-core/types"
)

// Simulated peripherals, chosen to match the built-in catalog entries.
const (
	addrAHT20    = 0x38
	addrVCNL4040 = 0x60
	addrLTC4015  = 0x68
)

func seedDevices(ht interface {
	PutSimDevice(addr uint8, regs map[uint8]byte)
}) {
	ht.PutSimDevice(addrAHT20, map[uint8]byte{
		0x71: 0x08, // status: calibrated, not busy (detection probe)
		// trigger-read reply: status + 20-bit humidity + 20-bit temp
		0x00: 0x08, 0x01: 0x80, 0x02: 0x00, 0x03: 0x08, 0x04: 0x00, 0x05: 0x00,
	})
	// The simulator's registers are one byte wide and each catalog poll
	// step reads two bytes starting at its own register, so neighbouring
	// steps share a byte.
	// Poll steps 0x08/0x09/0x0a read PS = 0x0010, ALS = 0x2000,
	// WHITE = 0x0120; 0x0c/0x0d are not read.
	ht.PutSimDevice(addrVCNL4040, map[uint8]byte{
		0x08: 0x10, 0x09: 0x00,
		0x0a: 0x20, 0x0b: 0x01,
		0x0c: 0x0A, 0x0d: 0x00,
	})
	// Poll steps 0x3A..0x3E read VBAT = 0x2000, VIN = 0x0020,
	// VSYS = 0x3000, IBAT = 0x0030, IIN = 0 (0x3F is unset).
	ht.PutSimDevice(addrLTC4015, map[uint8]byte{
		0x3A: 0x00, 0x3B: 0x20,
		0x3C: 0x00, 0x3D: 0x30,
		0x3E: 0x00,
	})
}

// topicFor maps one decoded record back onto the capability topic layout
// the teacher's main.go builds with bus.T(...) (hal/cap/<domain>/<kind>/<name>/value).
func topicFor(typeName, recordName string) bus.Topic {
	switch typeName {
	case "AHT20":
		switch recordName {
		case "temp_c":
			return bus.T("hal", "cap", "env", string(types.KindTemperature), "core", "value")
		case "humidity_pct":
			return bus.T("hal", "cap", "env", string(types.KindHumidity), "core", "value")
		}
	case "VCNL4040":
		return bus.T("hal", "cap", "env", string(types.KindLight), "core", "value", recordName)
	case "LTC4015":
		switch recordName {
		case "vbat_mv", "ibat_ma":
			return bus.T("hal", "cap", "power", string(types.KindBattery), "core", "value", recordName)
		default:
			return bus.T("hal", "cap", "power", string(types.KindCharger), "core", "value", recordName)
		}
	}
	return bus.T("hal", "cap", "unknown", typeName, recordName, "value")
}

func main() {
	log.SetOutput(newConsole())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	eng, ht := i2cbus.NewHostEngine()
	seedDevices(ht)

	cfg := i2cbus.BusConfig{
		Port:     i2cbus.PortConfig{FreqHz: 100_000},
		NumSlots: 0,
		Scanner: i2cbus.ScannerConfig{
			AddrMin:     0x08,
			AddrMax:     0x77,
			SweepBudget: 16,
			// Known peripherals get their own priority tiers so they're
			// re-checked far more often than a cold sweep of the full
			// address range would manage on its own (§4.7).
			PriorityTiers: [][]uint8{{addrAHT20}, {addrVCNL4040, addrLTC4015}},
			TierCounts:    []int{1, 4},
			ScanBoost:     []uint8{addrAHT20},
		},
	}

	b, err := i2cbus.NewBus(eng, cfg)
	if err != nil {
		log.Fatalf("i2cbus.NewBus: %v", err)
	}
	defer b.Deinit()
	b.AttachLogger(func(line string) { log.Print(line) })

	pubsub := bus.NewBus(8)
	conn := pubsub.NewConnection("i2cbus-demo")
	sub := conn.Subscribe(bus.T("hal", "cap", "#"))
	go func() {
		for msg := range sub.Channel() {
			log.Printf("[pubsub] %v = %+v", msg.Topic, msg.Payload)
		}
	}()

	var mu sync.Mutex
	var identified []i2cbus.Addr

	b.OnElemStatusChange(func(changes []i2cbus.ElemStatusChange) {
		for _, c := range changes {
			i2cAddr, slot := c.Address.Unpack()
			switch {
			case c.IsChangeToOnline:
				log.Printf("[i2cbus] addr=0x%02x slot=%d online", i2cAddr, slot)
			case c.IsChangeToOffline:
				log.Printf("[i2cbus] addr=0x%02x slot=%d offline", i2cAddr, slot)
			}
			if c.IsNewlyIdentified {
				log.Printf("[i2cbus] addr=0x%02x newly identified", i2cAddr)
				mu.Lock()
				identified = append(identified, c.Address)
				mu.Unlock()
			}
		}
	})

	b.OnOperationStatus(func(s i2cbus.BusOperationStatus) {
		log.Printf("[i2cbus] operation status -> %v", s)
	})

	go b.Run(ctx, 2)

	// Republish decoded poll samples on a fixed cadence, independent of
	// each device's own poll interval, since LatestDecoded only exposes
	// the most recent sample rather than a change notification.
	republish := time.NewTicker(200 * time.Millisecond)
	defer republish.Stop()
	for {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
			conn.Disconnect()
			return
		case <-republish.C:
			mu.Lock()
			addrs := append([]i2cbus.Addr(nil), identified...)
			mu.Unlock()
			for _, addr := range addrs {
				records, typeName, ok := b.LatestDecoded(addr)
				if !ok {
					continue
				}
				for _, r := range records {
					conn.Publish(conn.NewMessage(topicFor(typeName, r.Name), r.Value, true))
				}
			}
		}
	}
}
