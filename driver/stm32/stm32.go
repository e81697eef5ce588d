//go:build tinygo && stm32f4

// Package stm32 implements the scanline hardware on STM32F4
// microcontrollers. TIM5 is the free running line timer driving the
// hsync pin and gating TIM1, the pixel clock, which paces DMA2 stream 5
// writing line buffers to the GPIOB output register. Pixels are on
// PB0-PB11, hsync on PA1.
package stm32

import (
	"errors"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"rasterline.org/scanout"
	"rasterline.org/timing"
)

// CPUClock is the core frequency. The line timer runs at half of it.
const CPUClock = 176_000_000

// Port is a GPIO port.
type Port uint8

const (
	PortA Port = iota
	PortB
	PortC
)

type Config struct {
	// VSyncPort and VSyncPin select the vertical sync output.
	VSyncPort Port
	VSyncPin  uint8
}

var (
	// Board wiring with vsync on PA0.
	Board = Config{VSyncPort: PortA, VSyncPin: 0}
	// Prototype wiring with vsync on PC11.
	Prototype = Config{VSyncPort: PortC, VSyncPin: 11}
)

type timer struct {
	CR1   volatile.Register32
	CR2   volatile.Register32
	SMCR  volatile.Register32
	DIER  volatile.Register32
	SR    volatile.Register32
	EGR   volatile.Register32
	CCMR1 volatile.Register32
	CCMR2 volatile.Register32
	CCER  volatile.Register32
	CNT   volatile.Register32
	PSC   volatile.Register32
	ARR   volatile.Register32
	RCR   volatile.Register32
	CCR1  volatile.Register32
	CCR2  volatile.Register32
	CCR3  volatile.Register32
	CCR4  volatile.Register32
}

type stream struct {
	CR   volatile.Register32
	NDTR volatile.Register32
	PAR  volatile.Register32
	M0AR volatile.Register32
	M1AR volatile.Register32
	FCR  volatile.Register32
}

type dmaController struct {
	LISR    volatile.Register32
	HISR    volatile.Register32
	LIFCR   volatile.Register32
	HIFCR   volatile.Register32
	Streams [8]stream
}

type gpio struct {
	MODER   volatile.Register32
	OTYPER  volatile.Register32
	OSPEEDR volatile.Register32
	PUPDR   volatile.Register32
	IDR     volatile.Register32
	ODR     volatile.Register32
	BSRR    volatile.Register32
	LCKR    volatile.Register32
	AFR     [2]volatile.Register32
}

type rcc struct {
	_       [12]volatile.Register32
	AHB1ENR volatile.Register32
	_       [3]volatile.Register32
	APB1ENR volatile.Register32
	APB2ENR volatile.Register32
}

type dac struct {
	CR     volatile.Register32
	SWTRIG volatile.Register32
	DHR12R volatile.Register32
	DHR12L volatile.Register32
	DHR8R1 volatile.Register32
}

var (
	tim5    = (*timer)(unsafe.Pointer(uintptr(0x40000c00)))
	tim1    = (*timer)(unsafe.Pointer(uintptr(0x40010000)))
	dma2    = (*dmaController)(unsafe.Pointer(uintptr(0x40026400)))
	gpioA   = (*gpio)(unsafe.Pointer(uintptr(0x40020000)))
	gpioB   = (*gpio)(unsafe.Pointer(uintptr(0x40020400)))
	gpioC   = (*gpio)(unsafe.Pointer(uintptr(0x40020800)))
	rccRegs = (*rcc)(unsafe.Pointer(uintptr(0x40023800)))
	dac1    = (*dac)(unsafe.Pointer(uintptr(0x40007400)))

	nvicICPR = (*[8]volatile.Register32)(unsafe.Pointer(uintptr(0xe000e280)))
	demcr    = (*volatile.Register32)(unsafe.Pointer(uintptr(0xe000edfc)))
	dwtCtrl  = (*volatile.Register32)(unsafe.Pointer(uintptr(0xe0001000)))
	dwtCount = (*volatile.Register32)(unsafe.Pointer(uintptr(0xe0001004)))

	pixelStream = &dma2.Streams[5]
)

const (
	irqTIM5        = 50
	irqDMA2Stream5 = 68

	rccGPIOAEN = 1 << 0
	rccGPIOBEN = 1 << 1
	rccGPIOCEN = 1 << 2
	rccDMA2EN  = 1 << 22
	rccTIM5EN  = 1 << 3
	rccDACEN   = 1 << 29
	rccTIM1EN  = 1 << 0

	timCR1CEN   = 1 << 0
	timCR1ARPE  = 1 << 7
	timDIERUIE  = 1 << 0
	timDIERUDE  = 1 << 8
	timEGRUG    = 1 << 0
	timCCERCC2E = 1 << 4
	timCCERCC2P = 1 << 5

	// PWM mode 1 on channel 2: active until the compare match.
	timCCMR1OC2PWM1 = 6 << 12
	// PWM mode 2 on channel 3: active after the compare match.
	timCCMR2OC3PWM2 = 7 << 4
	// OC3REF as trigger output.
	timCR2MMSOC3 = 0b110 << 4
	// Gated mode from ITR0, which is TIM5 for TIM1.
	timSMCRGatedITR0 = 5

	dmaCREN     = 1 << 0
	dmaCRTCIE   = 1 << 4
	dmaCRM2P    = 1 << 6
	dmaCRMINC   = 1 << 10
	dmaCRPSIZE  = 1 << 11
	dmaCRMSIZE  = 1 << 13
	dmaCRPL     = 3 << 16
	dmaCRMBURST = 1 << 23
	dmaCRCH6    = 6 << 25
	dmaFCRDMDIS = 1 << 2
	dmaTCIF5    = 1 << 11

	pixelPins = 0x0fff
)

var (
	lineHandler     func()
	transferHandler func()
	lineIntr        interrupt.Interrupt
	transferIntr    interrupt.Interrupt
)

func init() {
	lineIntr = interrupt.New(irqTIM5, func(interrupt.Interrupt) {
		if lineHandler != nil {
			lineHandler()
		}
	})
	transferIntr = interrupt.New(irqDMA2Stream5, func(interrupt.Interrupt) {
		if transferHandler != nil {
			transferHandler()
		}
	})
}

// Hardware drives the line timer, pixel clock and pixel DMA. It
// implements [scanout.Hardware] and [scanout.CycleCounter].
type Hardware struct {
	vsync *gpio
	pin   uint8
}

// Init configures the video pins and peripherals, leaving the output
// black and both syncs inactive.
func Init(c Config) (*Hardware, error) {
	var vsync *gpio
	switch c.VSyncPort {
	case PortA:
		vsync = gpioA
		if c.VSyncPin == 1 {
			return nil, errors.New("stm32: vsync on the hsync pin")
		}
	case PortC:
		vsync = gpioC
	default:
		return nil, errors.New("stm32: vsync port not available")
	}
	if c.VSyncPin > 15 {
		return nil, errors.New("stm32: invalid vsync pin")
	}
	rccRegs.AHB1ENR.SetBits(rccGPIOAEN | rccGPIOBEN | rccGPIOCEN | rccDMA2EN)
	rccRegs.APB1ENR.SetBits(rccTIM5EN)
	rccRegs.APB2ENR.SetBits(rccTIM1EN)

	// Pixel DAC.
	configurePins(gpioB, pixelPins, modeOutput, pullDown)
	gpioB.BSRR.Set(pixelPins << 16)

	// Hsync on PA1, TIM5 channel 2.
	configurePins(gpioA, 1<<1, modeAlternate, pullUp)
	gpioA.AFR[0].ReplaceBits(2, 0xf, 1*4)

	configurePins(vsync, 1<<c.VSyncPin, modeOutput, pullUp)
	vsync.BSRR.Set(1 << c.VSyncPin)

	// Stop the pixel engine.
	tim1.CR1.ClearBits(timCR1CEN)
	pixelStream.CR.Set(0)

	// Cycle counter.
	demcr.SetBits(1 << 24)
	dwtCtrl.SetBits(1 << 0)

	return &Hardware{vsync: vsync, pin: c.VSyncPin}, nil
}

const (
	modeOutput    = 0b01
	modeAlternate = 0b10
	modeAnalog    = 0b11

	pullUp   = 0b01
	pullDown = 0b10
)

func configurePins(g *gpio, pins uint32, mode, pull uint32) {
	for p := range 16 {
		if pins&(1<<p) == 0 {
			continue
		}
		g.MODER.ReplaceBits(mode, 0b11, uint8(2*p))
		g.OTYPER.ClearBits(1 << p)
		// 50 MHz.
		g.OSPEEDR.ReplaceBits(0b10, 0b11, uint8(2*p))
		g.PUPDR.ReplaceBits(pull, 0b11, uint8(2*p))
	}
}

// SetInterrupts installs the line timer and transfer complete
// handlers. The transfer complete interrupt preempts the line
// interrupt.
func (h *Hardware) SetInterrupts(line, transfer func()) {
	lineHandler = line
	transferHandler = transfer
	lineIntr.SetPriority(0x40)
	transferIntr.SetPriority(0x00)
	lineIntr.Enable()
	transferIntr.Enable()
}

func (h *Hardware) StartLineTimer(m timing.Mode) {
	tim5.PSC.Set(0)
	tim5.CR1.Set(timCR1ARPE)
	tim5.DIER.Set(timDIERUIE)
	tim5.CCER.Set(0)
	tim5.ARR.Set(m.LinePeriod - 1)

	// Active low hsync from the top of the period.
	tim5.CCMR1.Set(timCCMR1OC2PWM1)
	tim5.CCER.Set(timCCERCC2E | timCCERCC2P)
	tim5.CCR2.Set(m.HSyncWidth)

	// Pixel clock gate.
	tim5.CR2.Set(timCR2MMSOC3)
	tim5.CCMR2.Set(timCCMR2OC3PWM2)
	tim5.CCR3.Set(m.TriggerOffset)

	tim1.PSC.Set(0)
	tim1.ARR.Set(m.PixelClockDiv - 1)
	tim1.CR1.Set(timCR1ARPE)
	tim1.DIER.Set(timDIERUDE)
	tim1.SMCR.Set(timSMCRGatedITR0)

	// Start just before the reload.
	tim5.CNT.Set(^uint32(10 - 1))
	tim5.CR1.SetBits(timCR1CEN)
}

func (h *Hardware) AckLineInterrupt() {
	tim5.SR.Set(0)
}

func (h *Hardware) Blank() {
	gpioB.BSRR.Set(pixelPins << 16)
}

func (h *Hardware) Arm(buf scanout.LineBuffer) {
	pixelStream.CR.Set(dmaCRCH6 | dmaCRPL | dmaCRPSIZE | dmaCRMSIZE |
		dmaCRMINC | dmaCRM2P | dmaCRTCIE | dmaCRMBURST)
	pixelStream.NDTR.Set(uint32(len(buf)))
	pixelStream.PAR.Set(uint32(uintptr(unsafe.Pointer(&gpioB.ODR))))
	pixelStream.M0AR.Set(uint32(uintptr(unsafe.Pointer(&buf[0]))))
	pixelStream.FCR.SetBits(dmaFCRDMDIS)

	// The update request must be off while resetting the counter.
	tim1.DIER.Set(0)
	tim1.EGR.Set(timEGRUG)
	tim1.DIER.Set(timDIERUDE)
	// The clock runs only while the trigger is high.
	tim1.CR1.SetBits(timCR1CEN)
	pixelStream.CR.SetBits(dmaCREN)
}

func (h *Hardware) TransferComplete() bool {
	return dma2.HISR.HasBits(dmaTCIF5)
}

func (h *Hardware) ClearTransferComplete() {
	dma2.HIFCR.Set(dmaTCIF5)
}

func (h *Hardware) StopPixelEngine() {
	tim1.CR1.ClearBits(timCR1CEN)
	pixelStream.CR.Set(0)
}

func (h *Hardware) DiscardTransferInterrupt() {
	nvicICPR[irqDMA2Stream5/32].Set(1 << (irqDMA2Stream5 % 32))
}

func (h *Hardware) SetVSync(active bool) {
	// Active low.
	if active {
		h.vsync.BSRR.Set(1 << (h.pin + 16))
	} else {
		h.vsync.BSRR.Set(1 << h.pin)
	}
}

func (h *Hardware) Cycles() uint32 {
	return dwtCount.Get()
}

// DAC is the 8-bit audio output on PA4.
type DAC struct{}

func InitDAC() DAC {
	rccRegs.APB1ENR.SetBits(rccDACEN)
	gpioA.MODER.ReplaceBits(modeAnalog, 0b11, 2*4)
	dac1.CR.SetBits(1 << 0)
	return DAC{}
}

func (DAC) Sample(v uint8) {
	dac1.DHR8R1.Set(uint32(v))
}

// BufferMemory is DMA reachable memory for the line buffers, with room
// for two lines aligned to 1 KiB.
var bufferMemory [2*1024 + 512]scanout.Pixel

func BufferMemory() []scanout.Pixel {
	return bufferMemory[:]
}
