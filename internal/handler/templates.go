package handler

const tmplPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<style>
  html, body { margin: 0; height: 100%; font-family: system-ui, sans-serif; font-size: 14px; }
  #app { display: flex; height: 100%; }
  #sidebar { width: 300px; padding: 16px; box-sizing: border-box; background: #f6f8fa; border-right: 1px solid #d0d7de; overflow-y: auto; }
  #map { flex: 1; }
  h1 { font-size: 18px; margin: 0 0 16px; }
  label { display: block; margin: 12px 0 4px; font-weight: 600; }
  select, input, button { width: 100%; box-sizing: border-box; padding: 6px; font-size: 14px; }
  button { margin-top: 12px; cursor: pointer; }
  button:disabled, select:disabled, input:disabled { cursor: not-allowed; opacity: .6; }
  #notice { margin-top: 16px; padding: 8px; border-radius: 4px; display: none; }
  #notice.info { display: block; background: #ddf4ff; color: #0969da; }
  #notice.warn { display: block; background: #fff8c5; color: #9a6700; }
  #notice.error { display: block; background: #ffebe9; color: #cf222e; }
  #summary { margin-top: 12px; color: #57606a; }
  hr { margin: 20px 0; border: 0; border-top: 1px solid #d0d7de; }
</style>
</head>
<body>
<div id="app">
  <div id="sidebar">
    <h1>{{.Title}}</h1>

    <label for="dataset">GTFS dataset</label>
    <select id="dataset"></select>
    <button id="reload" type="button">Reload datasets</button>

    <label for="route">Route</label>
    <select id="route"></select>

    <label for="datetime">Date and time</label>
    <input id="datetime" type="datetime-local">

    <button id="view" type="button">View route</button>
    <div id="summary"></div>

    <hr>

    <form id="upload-form">
      <label for="file">Upload GTFS feed (.zip)</label>
      <input id="file" name="file" type="file" accept=".zip">
      <button id="upload" type="submit">Upload</button>
    </form>

    <div id="notice"></div>
  </div>
  <div id="map"></div>
</div>

<script id="initial-state" type="application/json">{{.State}}</script>
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<script>
(function () {
  var map = L.map('map').setView([0, 0], 2);
  L.tileLayer('https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png', {
    maxZoom: 19,
    attribution: '&copy; OpenStreetMap contributors'
  }).addTo(map);

  var layers = {};
  var el = function (id) { return document.getElementById(id); };

  function decodePolyline(str) {
    var points = [], index = 0, lat = 0, lng = 0;
    while (index < str.length) {
      var b, shift = 0, result = 0;
      do { b = str.charCodeAt(index++) - 63; result |= (b & 0x1f) << shift; shift += 5; } while (b >= 0x20);
      lat += (result & 1) ? ~(result >> 1) : (result >> 1);
      shift = 0; result = 0;
      do { b = str.charCodeAt(index++) - 63; result |= (b & 0x1f) << shift; shift += 5; } while (b >= 0x20);
      lng += (result & 1) ? ~(result >> 1) : (result >> 1);
      points.push([lat / 1e5, lng / 1e5]);
    }
    return points;
  }

  function removeLayer(id) {
    if (layers[id]) { map.removeLayer(layers[id]); delete layers[id]; }
  }

  function addPolyline(p) {
    removeLayer(p.id);
    layers[p.id] = L.polyline(decodePolyline(p.points), { color: p.color, weight: 4 }).addTo(map);
  }

  function addMarker(m) {
    removeLayer(m.id);
    layers[m.id] = L.marker([m.lat, m.lng]).bindPopup(document.createTextNode(m.label)).addTo(map);
  }

  function fit(b) {
    map.fitBounds([[b.minLat, b.minLng], [b.maxLat, b.maxLng]]);
  }

  function applySnapshot(s) {
    Object.keys(layers).forEach(removeLayer);
    (s.polylines || []).forEach(addPolyline);
    (s.markers || []).forEach(addMarker);
    if (s.bounds) { fit(s.bounds); }
  }

  function fillSelect(select, options, value, placeholder) {
    select.innerHTML = '';
    var first = document.createElement('option');
    first.value = '';
    first.textContent = placeholder;
    select.appendChild(first);
    (options || []).forEach(function (o) {
      var opt = document.createElement('option');
      opt.value = o.value;
      opt.textContent = o.label;
      select.appendChild(opt);
    });
    select.value = value || '';
  }

  function showNotice(n) {
    var box = el('notice');
    box.className = n ? n.level : '';
    box.textContent = n ? n.text : '';
  }

  function render(state) {
    fillSelect(el('dataset'), state.datasets, state.datasetId, 'Select a dataset');
    fillSelect(el('route'), state.routes, state.routeId, 'Select a route');
    el('dataset').disabled = !state.datasetEnabled;
    el('route').disabled = !state.routeEnabled;
    el('datetime').disabled = !state.datetimeEnabled;
    el('datetime').value = state.datetime ? state.datetime.replace(' ', 'T') : '';
    el('view').disabled = !state.viewEnabled || state.loading;
    el('view').textContent = state.loading ? 'Loading...' : 'View route';
    el('upload').disabled = state.upload === 'uploading';
    el('upload').textContent = state.upload === 'uploading' ? 'Uploading...' : 'Upload';

    var r = state.lastRender;
    el('summary').textContent = r ? (r.points + ' shape points, ' + r.markers + ' stops') : '';
    showNotice(state.notice);
  }

  // Resolves to true only for an action the server reports as done.
  function handle(resp) {
    return resp.json().then(function (body) {
      if (body.state) { render(body.state); }
      if (body.error) { showNotice({ level: 'error', text: body.error }); }
      return resp.ok && body.ok === true;
    });
  }

  function post(path, payload) {
    return fetch(path, {
      method: 'POST',
      headers: { 'Content-Type': 'application/json' },
      body: JSON.stringify(payload || {})
    }).then(handle).catch(function () {
      showNotice({ level: 'error', text: 'Connection to the server failed.' });
      return false;
    });
  }

  el('dataset').addEventListener('change', function (e) { post('/ui/dataset', { datasetId: e.target.value }); });
  el('route').addEventListener('change', function (e) { post('/ui/route', { routeId: e.target.value }); });
  el('datetime').addEventListener('change', function (e) { post('/ui/datetime', { datetime: e.target.value }); });
  el('reload').addEventListener('click', function () { post('/ui/datasets/reload'); });
  el('view').addEventListener('click', function () {
    el('view').disabled = true;
    el('view').textContent = 'Loading...';
    post('/ui/view');
  });

  el('upload-form').addEventListener('submit', function (e) {
    e.preventDefault();
    var file = el('file').files[0];
    if (!file) { showNotice({ level: 'error', text: 'Please choose a file.' }); return; }
    var data = new FormData();
    data.append('file', file);
    el('upload').disabled = true;
    el('upload').textContent = 'Uploading...';
    fetch('/ui/upload', { method: 'POST', body: data }).then(handle).then(function (done) {
      if (done) { el('upload-form').reset(); }
    }).catch(function () {
      showNotice({ level: 'error', text: 'Connection to the server failed.' });
      el('upload').disabled = false;
      el('upload').textContent = 'Upload';
    });
  });

  function connect() {
    var proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
    var ws = new WebSocket(proto + location.host + '/ui/ws');
    ws.onmessage = function (ev) {
      var msg = JSON.parse(ev.data);
      switch (msg.type) {
        case 'snapshot': applySnapshot(msg.payload); break;
        case 'polyline': addPolyline(msg.payload); break;
        case 'marker': addMarker(msg.payload); break;
        case 'remove': removeLayer(msg.payload.id); break;
        case 'fit': fit(msg.payload); break;
      }
    };
    ws.onclose = function () { setTimeout(connect, 2000); };
  }

  render(JSON.parse(el('initial-state').textContent));
  connect();
})();
</script>
</body>
</html>
`
