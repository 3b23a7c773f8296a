package nvkms

const (
	testVersion = "550.54.14"
	testDisp    = emuDisp
	testConnHDM = emuConnHDMI
	testDpyDP   = emuDpyDP
	testDpyHDMI = emuDpyHDMI
)

type fakeDevice = Emulator

func newFakeDevice() *fakeDevice {
	return NewEmulator(testVersion)
}
