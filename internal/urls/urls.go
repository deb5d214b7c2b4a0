package urls

// Documentation URLs for guides and troubleshooting.
// ESP-IDF pages cover the on-device side of a crash; the project README
// covers this tool.

// FatalErrors explains panic handler output: Guru Meditation errors,
// register dumps and backtraces.
const FatalErrors = "https://docs.espressif.com/projects/esp-idf/en/latest/esp32/api-guides/fatal-errors.html"

// CoreDump describes how core dumps are configured, stored in flash and
// retrieved from a device.
const CoreDump = "https://docs.espressif.com/projects/esp-idf/en/latest/esp32/api-guides/core_dump.html"

// Toolchain explains where the Xtensa and RISC-V gdb binaries come from.
const Toolchain = "https://docs.espressif.com/projects/esp-idf/en/latest/esp32/api-guides/tools/idf-tools.html"

// RISCVExceptions lists the machine-mode exception causes reported in
// MCAUSE.
const RISCVExceptions = "https://docs.espressif.com/projects/esp-idf/en/latest/esp32c3/api-guides/fatal-errors.html#riscv-exception"

// Troubleshooting is the project troubleshooting guide.
const Troubleshooting = "https://github.com/muurk/trbr#troubleshooting"
