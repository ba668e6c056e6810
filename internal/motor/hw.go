package motor

// Swappable for tests.
var openDirPinFn = openDirPin
var openPWMPinFn = openPWM
