package stream

// viewerHTML is the self-contained preview page. It shows /stream, polls
// /stats once a second for latency and FPS, and downloads snapshots.
//
// Latency combines the on-board part (serverTs - captureTs) with the network
// part (browserNow - serverTs). When the two clocks differ by more than 2 s
// only the on-board part is shown together with a clock hint.
const viewerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>Camera Live View</title>
	<style>
		body { margin: 0; padding: 20px; background: #1a1a1a; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif; }
		.container { max-width: 1200px; margin: 0 auto; background: #2d2d2d; border-radius: 10px; padding: 20px; box-shadow: 0 5px 20px rgba(0,0,0,0.5); }
		h1 { color: #fff; text-align: center; margin-bottom: 20px; }
		#stream { width: 100%; border-radius: 8px; background: #000; }
		.controls { margin-top: 20px; text-align: center; }
		button { background: #4CAF50; color: white; border: none; padding: 12px 24px; margin: 5px; border-radius: 5px; cursor: pointer; font-size: 16px; }
		button:hover { background: #45a049; }
		.snapshot-btn { background: #2196F3; }
		.snapshot-btn:hover { background: #0b7dda; }
		.info { color: #aaa; margin-top: 15px; font-size: 14px; line-height: 1.6; }
		.hint { color: #f5a623; font-size: 13px; margin-top: 8px; }
		.status { display: inline-block; width: 10px; height: 10px; border-radius: 50%; background: #4CAF50; margin-right: 8px; animation: pulse 2s infinite; }
		@keyframes pulse { 0%, 100% { opacity: 1; } 50% { opacity: 0.5; } }
		.filename-config { margin-top: 15px; text-align: center; }
		.filename-config label { color: #aaa; font-size: 14px; margin-right: 10px; }
		.filename-config input { background: #1a1a1a; color: #fff; border: 1px solid #555; padding: 8px 12px; border-radius: 5px; font-size: 14px; width: 200px; }
		.filename-config input:focus { outline: none; border-color: #4CAF50; }
	</style>
</head>
<body>
	<div class="container">
		<h1>Camera Live View <span class="status"></span></h1>
		<img id="stream" src="/stream" alt="camera stream">
		<div class="controls">
			<button class="snapshot-btn" onclick="takeSnapshot()">Save snapshot</button>
			<button onclick="reconnect()">Reconnect</button>
			<button onclick="toggleFullscreen()">Fullscreen</button>
		</div>
		<div class="filename-config">
			<label for="filenamePrefix">File name prefix:</label>
			<input type="text" id="filenamePrefix" value="snapshot" placeholder="snapshot">
			<span style="color: #777; font-size: 12px; margin-left: 10px;">Format: prefix_YYYYMMDD_HHMMSS.png</span>
		</div>
		<div class="info">
			<p>Snapshots are full resolution lossless PNG. Stream URL: <span id="url"></span></p>
			<p>Shortcuts: <strong>K</strong> snapshot, <strong>F</strong> fullscreen, <strong>R</strong> reconnect</p>
			<p>Latency: <strong><span id="latency">--</span></strong> &middot; Frame rate: <strong><span id="fps">--</span></strong></p>
			<p id="clock-hint" class="hint"></p>
		</div>
	</div>
	<script>
		document.getElementById('url').textContent = window.location.origin + '/stream';
		const img = document.getElementById('stream');
		const prefixInput = document.getElementById('filenamePrefix');

		prefixInput.value = localStorage.getItem('filenamePrefix') || 'snapshot';
		prefixInput.addEventListener('change', function() {
			localStorage.setItem('filenamePrefix', this.value.trim() || 'snapshot');
		});

		function pad(n) {
			return String(n).padStart(2, '0');
		}

		function takeSnapshot() {
			const prefix = prefixInput.value.trim() || 'snapshot';
			const now = new Date();
			const filename = prefix + '_' + now.getFullYear() + pad(now.getMonth() + 1) + pad(now.getDate()) +
				'_' + pad(now.getHours()) + pad(now.getMinutes()) + pad(now.getSeconds()) + '.png';

			const a = document.createElement('a');
			a.href = '/snapshot?prefix=' + encodeURIComponent(prefix);
			a.download = filename;
			a.style.display = 'none';
			document.body.appendChild(a);
			a.click();
			document.body.removeChild(a);

			const note = document.createElement('div');
			note.textContent = 'Downloading ' + filename;
			note.style.cssText = 'position:fixed;top:20px;right:20px;background:#4CAF50;color:white;padding:15px 25px;border-radius:5px;box-shadow:0 2px 10px rgba(0,0,0,0.3);z-index:9999;';
			document.body.appendChild(note);
			setTimeout(() => document.body.removeChild(note), 3000);
		}

		function reconnect() {
			img.src = '/stream?t=' + Date.now();
		}

		function toggleFullscreen() {
			if (!document.fullscreenElement) {
				img.requestFullscreen();
			} else {
				document.exitFullscreen();
			}
		}

		document.addEventListener('keydown', function(event) {
			const active = document.activeElement;
			if (active && (active.tagName === 'INPUT' || active.tagName === 'TEXTAREA')) {
				return;
			}
			switch (event.key.toLowerCase()) {
			case 'k':
				event.preventDefault();
				takeSnapshot();
				break;
			case 'f':
				event.preventDefault();
				toggleFullscreen();
				break;
			case 'r':
				event.preventDefault();
				reconnect();
				break;
			}
		});

		async function updateStats() {
			const latencyEl = document.getElementById('latency');
			const fpsEl = document.getElementById('fps');
			const hintEl = document.getElementById('clock-hint');
			try {
				const response = await fetch('/stats');
				if (!response.ok) throw new Error('stats fetch failed');
				const data = await response.json();
				hintEl.textContent = '';

				const captureTs = Number(data.latestCaptureTsMs) || 0;
				const serverTs = Number(data.serverTsMs) || 0;
				const browserNow = Date.now();

				if (captureTs && serverTs) {
					const internalLatency = Math.max(0, serverTs - captureTs);
					const clockOffset = browserNow - serverTs;
					if (Math.abs(clockOffset) > 2000) {
						latencyEl.textContent = internalLatency + ' ms (on board)';
						hintEl.textContent = 'Board clock is not in sync with this computer, total latency would be misleading.';
					} else {
						latencyEl.textContent = (internalLatency + Math.max(0, clockOffset)) + ' ms';
					}
				} else {
					latencyEl.textContent = '--';
				}

				if (data.estimatedFps && data.estimatedFps > 0) {
					fpsEl.textContent = Number(data.estimatedFps).toFixed(1) + ' FPS';
				} else {
					fpsEl.textContent = '--';
				}
			} catch (err) {
				latencyEl.textContent = 'N/A';
				fpsEl.textContent = 'N/A';
				hintEl.textContent = '';
			}
		}

		setInterval(updateStats, 1000);
		updateStats();
	</script>
</body>
</html>
`
