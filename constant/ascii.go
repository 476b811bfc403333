package constant

// AsciiArtLogo is the application's banner shown in the root help output.
const AsciiArtLogo = `
 _                            _                  _
| | ___  ___ ___  ___  _ __  | |_ _ __ __ _  ___| | __
| |/ _ \/ __/ __|/ _ \| '_ \ | __| '__/ _' |/ __| |/ /
| |  __/\__ \__ \ (_) | | | || |_| | | (_| | (__|   <
|_|\___||___/___/\___/|_| |_| \__|_|  \__,_|\___|_|\_\`
